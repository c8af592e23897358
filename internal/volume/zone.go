package volume

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// PrimaryZoneID is the driver-facing zone. It always exists and cannot be
// released from an occupant.
const PrimaryZoneID = 0

// Zone is one audio zone: an occupant-facing set of outputs with independent
// volume and focus. A zone holds one or more configs with exactly one active.
type Zone struct {
	mu sync.Mutex

	id     int
	name   string
	logger *logrus.Logger

	// userID is the occupant bound to this zone; group settings follow it.
	userID int

	configs         map[int]*ZoneConfig
	currentConfigID int
}

// NewZone builds a zone from its configs. The default config becomes current.
func NewZone(id int, name string, configs []*ZoneConfig, logger *logrus.Logger) (*Zone, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("zone %d has no configs", id)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	byID := make(map[int]*ZoneConfig, len(configs))
	currentID := -1
	for _, config := range configs {
		if _, dup := byID[config.ID()]; dup {
			return nil, fmt.Errorf("zone %d: duplicate config id %d", id, config.ID())
		}
		byID[config.ID()] = config
		if config.IsDefault() {
			if currentID != -1 {
				return nil, fmt.Errorf("zone %d: more than one default config", id)
			}
			currentID = config.ID()
		}
	}
	if currentID == -1 {
		return nil, fmt.Errorf("zone %d: no default config", id)
	}
	return &Zone{
		id:              id,
		name:            name,
		logger:          logger,
		configs:         byID,
		currentConfigID: currentID,
	}, nil
}

func (z *Zone) ID() int         { return z.id }
func (z *Zone) Name() string    { return z.name }
func (z *Zone) IsPrimary() bool { return z.id == PrimaryZoneID }

// UserID returns the occupant currently bound to the zone.
func (z *Zone) UserID() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.userID
}

// AssignUser binds an occupant and reloads every group's persisted state.
func (z *Zone) AssignUser(userID int) {
	z.mu.Lock()
	z.userID = userID
	config := z.configs[z.currentConfigID]
	z.mu.Unlock()
	config.LoadSettingsForUser(userID)
}

// CurrentConfig returns the active config.
func (z *Zone) CurrentConfig() *ZoneConfig {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.configs[z.currentConfigID]
}

// Configs returns all configs in id order.
func (z *Zone) Configs() []*ZoneConfig {
	z.mu.Lock()
	defer z.mu.Unlock()
	configs := make([]*ZoneConfig, 0, len(z.configs))
	for _, config := range z.configs {
		configs = append(configs, config)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID() < configs[j].ID() })
	return configs
}

// SwitchConfig activates a different config and rebinds the occupant's
// settings onto its groups.
func (z *Zone) SwitchConfig(configID int) error {
	z.mu.Lock()
	config, ok := z.configs[configID]
	if !ok {
		z.mu.Unlock()
		return fmt.Errorf("zone %d has no config %d", z.id, configID)
	}
	if configID == z.currentConfigID {
		z.mu.Unlock()
		return nil
	}
	z.currentConfigID = configID
	userID := z.userID
	z.mu.Unlock()

	config.LoadSettingsForUser(userID)
	z.logger.WithFields(logrus.Fields{
		"zone": z.id, "config": config.Name(),
	}).Info("zone config switched")
	return nil
}

// GroupEvent pairs a group with the change mask one gain report produced.
type GroupEvent struct {
	Group  *Group
	Events EventType
}

// OnAudioGainChanged routes hardware gain reports to the owning groups of the
// active config. Reports for addresses outside the config are skipped with a
// warning; a partial batch still applies the reports that matched.
func (z *Zone) OnAudioGainChanged(reasons []GainReason, gains []GainConfig) []GroupEvent {
	config := z.CurrentConfig()
	var out []GroupEvent
	for _, gain := range gains {
		group := config.GroupForAddress(gain.Address)
		if group == nil {
			z.logger.WithFields(logrus.Fields{
				"zone": z.id, "address": gain.Address,
			}).Warn("gain report for unknown device address")
			continue
		}
		events, err := group.OnAudioGainChanged(reasons, gain)
		if err != nil {
			z.logger.WithError(err).WithFields(logrus.Fields{
				"zone": z.id, "group": group.ID(),
			}).Warn("rejected gain report")
			continue
		}
		if events != EventNone {
			out = append(out, GroupEvent{Group: group, Events: events})
		}
	}
	return out
}

// OnDeviceGainRangeChanged applies a hardware-reported gain range to a device
// in the active config and recomputes the owning group's gain stage. The
// second return reports whether the recompute changed anything observable.
func (z *Zone) OnDeviceGainRangeChanged(address string, gain audio.GainInfo) (GroupEvent, bool, error) {
	config := z.CurrentConfig()
	group := config.GroupForAddress(address)
	if group == nil {
		return GroupEvent{}, false, fmt.Errorf("%w: zone %d address %q", ErrDeviceNotFound, z.id, address)
	}
	device := group.DeviceForAddress(address)
	if err := device.UpdateGainInfo(gain); err != nil {
		return GroupEvent{}, false, fmt.Errorf("zone %d device %q: %w", z.id, address, err)
	}
	events := group.CalculateNewGainStageFromDeviceInfos()
	z.logger.WithFields(logrus.Fields{
		"zone": z.id, "address": address, "events": events.String(),
	}).Info("device gain range updated")
	if events == EventNone {
		return GroupEvent{}, false, nil
	}
	return GroupEvent{Group: group, Events: events}, true, nil
}

// GroupForContext resolves a context through the active config.
func (z *Zone) GroupForContext(context audio.Context) *Group {
	return z.CurrentConfig().GroupForContext(context)
}

// Store holds every zone by id. Built once at startup from topology; reads
// after that are lock-free.
type Store struct {
	zones map[int]*Zone
}

// NewStore indexes zones and requires the primary zone to be present.
func NewStore(zones []*Zone) (*Store, error) {
	byID := make(map[int]*Zone, len(zones))
	for _, zone := range zones {
		if _, dup := byID[zone.ID()]; dup {
			return nil, fmt.Errorf("duplicate zone id %d", zone.ID())
		}
		byID[zone.ID()] = zone
	}
	if _, ok := byID[PrimaryZoneID]; !ok {
		return nil, fmt.Errorf("primary zone %d is missing", PrimaryZoneID)
	}
	return &Store{zones: byID}, nil
}

// Zone returns the zone with the given id, or nil.
func (s *Store) Zone(id int) *Zone {
	return s.zones[id]
}

// PrimaryZone returns the driver zone.
func (s *Store) PrimaryZone() *Zone {
	return s.zones[PrimaryZoneID]
}

// Zones returns every zone in id order.
func (s *Store) Zones() []*Zone {
	zones := make([]*Zone, 0, len(s.zones))
	for _, zone := range s.zones {
		zones = append(zones, zone)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID() < zones[j].ID() })
	return zones
}

// ZoneIDs returns every zone id in order.
func (s *Store) ZoneIDs() []int {
	ids := make([]int, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
