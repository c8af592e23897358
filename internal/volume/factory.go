package volume

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// GroupFactory accumulates context-to-device bindings and builds an immutable
// Group. Each factory builds exactly one group.
type GroupFactory struct {
	zoneID   int
	configID int
	groupID  int
	name     string

	settings SettingsStore
	logger   *logrus.Logger

	contextToAddress map[audio.Context]string
	devices          map[string]*audio.DeviceInfo
	stepMb           int
}

// NewGroupFactory starts a group definition. A nil logger falls back to the
// standard logger, matching the service constructors elsewhere.
func NewGroupFactory(zoneID, configID, groupID int, name string,
	settings SettingsStore, logger *logrus.Logger) *GroupFactory {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GroupFactory{
		zoneID:           zoneID,
		configID:         configID,
		groupID:          groupID,
		name:             name,
		settings:         settings,
		logger:           logger,
		contextToAddress: make(map[audio.Context]string),
		devices:          make(map[string]*audio.DeviceInfo),
	}
}

// SetDeviceInfoForContext routes a context to a device within the group. The
// first bound device fixes the group's gain step; later devices must match
// it, since one index mapper serves the whole group.
func (f *GroupFactory) SetDeviceInfoForContext(context audio.Context, device *audio.DeviceInfo) error {
	if !context.IsValid() {
		return fmt.Errorf("invalid context %d", context)
	}
	if device == nil {
		return fmt.Errorf("nil device for context %s", context)
	}
	if existing, bound := f.contextToAddress[context]; bound {
		return fmt.Errorf("context %s already routed to %s", context, existing)
	}
	step := device.StepSize()
	if len(f.devices) == 0 {
		f.stepMb = step
	} else if step != f.stepMb {
		return fmt.Errorf("device %s step %d does not match group step %d",
			device.Address(), step, f.stepMb)
	}
	f.contextToAddress[context] = device.Address()
	f.devices[device.Address()] = device
	return nil
}

// Build finalizes the group. The gain range is the union across devices:
// lowest min, highest max, highest default.
func (f *GroupFactory) Build() (*Group, error) {
	if len(f.devices) == 0 {
		return nil, fmt.Errorf("volume group %q has no devices", f.name)
	}
	gain, err := unionGainInfo(f.devices)
	if err != nil {
		return nil, fmt.Errorf("volume group %q: %w", f.name, err)
	}
	mapper := GainIndexMapper{MinGainMb: gain.MinMb, StepMb: gain.StepMb}
	group := &Group{
		zoneID:           f.zoneID,
		configID:         f.configID,
		id:               f.groupID,
		name:             f.name,
		settings:         f.settings,
		logger:           f.logger,
		contextToAddress: f.contextToAddress,
		devices:          f.devices,
		gain:             gain,
		mapper:           mapper,
		currentGainIndex: mapper.IndexForGain(gain.DefaultMb),
		storedGainIndex:  mapper.IndexForGain(gain.DefaultMb),
	}
	group.limitedGainIndex = group.maxGainIndexLocked()
	return group, nil
}
