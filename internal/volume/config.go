package volume

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// ZoneConfig is one complete routing layout for a zone: a set of volume
// groups that together cover every audio context exactly once. A zone can
// carry several configs (e.g. a headset layout next to the speaker layout)
// with exactly one active at a time.
type ZoneConfig struct {
	zoneID    int
	id        int
	name      string
	isDefault bool
	groups    []*Group
	logger    *logrus.Logger
}

func (c *ZoneConfig) ZoneID() int     { return c.zoneID }
func (c *ZoneConfig) ID() int         { return c.id }
func (c *ZoneConfig) Name() string    { return c.name }
func (c *ZoneConfig) IsDefault() bool { return c.isDefault }

// Groups returns the config's volume groups in group-id order.
func (c *ZoneConfig) Groups() []*Group {
	groups := make([]*Group, len(c.groups))
	copy(groups, c.groups)
	return groups
}

// Group returns the group with the given id, or nil.
func (c *ZoneConfig) Group(groupID int) *Group {
	for _, group := range c.groups {
		if group.ID() == groupID {
			return group
		}
	}
	return nil
}

// GroupForContext returns the group a context is routed through, or nil.
func (c *ZoneConfig) GroupForContext(context audio.Context) *Group {
	for _, group := range c.groups {
		if group.AddressForContext(context) != "" {
			return group
		}
	}
	return nil
}

// GroupForAddress returns the group owning a device address, or nil.
func (c *ZoneConfig) GroupForAddress(address string) *Group {
	for _, group := range c.groups {
		if group.HasDevice(address) {
			return group
		}
	}
	return nil
}

// LoadSettingsForUser rebinds every group in the config to a user.
func (c *ZoneConfig) LoadSettingsForUser(userID int) {
	for _, group := range c.groups {
		group.LoadSettingsForUser(userID)
	}
}

// ZoneConfigBuilder accumulates groups and validates the finished config.
type ZoneConfigBuilder struct {
	zoneID    int
	id        int
	name      string
	isDefault bool
	// Shared-address layouts are tolerated when core routing owns the mix;
	// dynamic-mix eligibility is revoked instead of failing validation.
	useCoreAudioRouting bool
	groups              []*Group
	logger              *logrus.Logger
}

func NewZoneConfigBuilder(zoneID, configID int, name string, isDefault bool,
	logger *logrus.Logger) *ZoneConfigBuilder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ZoneConfigBuilder{
		zoneID:    zoneID,
		id:        configID,
		name:      name,
		isDefault: isDefault,
		logger:    logger,
	}
}

// UseCoreAudioRouting marks the config as core-routed, relaxing the
// one-group-per-address rule to a warning.
func (b *ZoneConfigBuilder) UseCoreAudioRouting() *ZoneConfigBuilder {
	b.useCoreAudioRouting = true
	return b
}

func (b *ZoneConfigBuilder) AddVolumeGroup(group *Group) *ZoneConfigBuilder {
	b.groups = append(b.groups, group)
	return b
}

// Build validates and finalizes the config. A config is rejected when a
// context is routed by more than one group, when coverage is incomplete, or
// when a device address is shared across groups outside core routing.
func (b *ZoneConfigBuilder) Build() (*ZoneConfig, error) {
	if len(b.groups) == 0 {
		return nil, fmt.Errorf("zone %d config %q has no volume groups", b.zoneID, b.name)
	}
	if err := b.validateContextCoverage(); err != nil {
		return nil, err
	}
	if err := b.validateDeviceOwnership(); err != nil {
		return nil, err
	}
	b.validateDynamicMixRouting()
	return &ZoneConfig{
		zoneID:    b.zoneID,
		id:        b.id,
		name:      b.name,
		isDefault: b.isDefault,
		groups:    b.groups,
		logger:    b.logger,
	}, nil
}

// validateContextCoverage enforces that every valid context is routed by
// exactly one group: no duplicates, no gaps.
func (b *ZoneConfigBuilder) validateContextCoverage() error {
	seen := make(map[audio.Context]int)
	for _, group := range b.groups {
		for _, context := range group.Contexts() {
			if owner, dup := seen[context]; dup {
				return fmt.Errorf("zone %d config %q: context %s routed by groups %d and %d",
					b.zoneID, b.name, context, owner, group.ID())
			}
			seen[context] = group.ID()
		}
	}
	for _, context := range audio.AllContexts() {
		if _, ok := seen[context]; !ok {
			return fmt.Errorf("zone %d config %q: context %s is not routed",
				b.zoneID, b.name, context)
		}
	}
	return nil
}

// validateDeviceOwnership enforces that an address belongs to at most one
// group. Under core routing a shared address only loses dynamic-mix
// eligibility.
func (b *ZoneConfigBuilder) validateDeviceOwnership() error {
	owners := make(map[string]int)
	for _, group := range b.groups {
		for _, address := range group.Addresses() {
			owner, shared := owners[address]
			if !shared {
				owners[address] = group.ID()
				continue
			}
			if !b.useCoreAudioRouting {
				return fmt.Errorf("zone %d config %q: device %s shared by groups %d and %d",
					b.zoneID, b.name, address, owner, group.ID())
			}
			b.logger.WithFields(logrus.Fields{
				"zone": b.zoneID, "config": b.name, "address": address,
			}).Warn("device shared across volume groups under core routing")
			for _, g := range []int{owner, group.ID()} {
				for _, candidate := range b.groups {
					if candidate.ID() != g {
						continue
					}
					if device := candidate.DeviceForAddress(address); device != nil {
						device.ResetDynamicMixRouting()
					}
				}
			}
		}
	}
	return nil
}

// validateDynamicMixRouting revokes dynamic-mix eligibility on any device
// whose usages are also reachable through another address. Dynamic mixes
// match on usage, so a usage split across two addresses cannot be expressed
// as a mix rule.
func (b *ZoneConfigBuilder) validateDynamicMixRouting() {
	usageToAddress := make(map[audio.Usage]string)
	for _, group := range b.groups {
		for _, address := range group.Addresses() {
			for _, usage := range group.UsagesForAddress(address) {
				other, seen := usageToAddress[usage]
				if !seen {
					usageToAddress[usage] = address
					continue
				}
				if other == address {
					continue
				}
				for _, g := range b.groups {
					if device := g.DeviceForAddress(address); device != nil {
						device.ResetDynamicMixRouting()
					}
					if device := g.DeviceForAddress(other); device != nil {
						device.ResetDynamicMixRouting()
					}
				}
			}
		}
	}
}
