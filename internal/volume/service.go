package volume

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// EventSink receives volume-group change notifications. The events hub
// implements it; a nil sink drops notifications.
type EventSink interface {
	PublishVolumeEvent(info GroupInfo, events EventType)
}

// ErrZoneNotFound is returned for lookups against unknown zone ids.
var ErrZoneNotFound = errors.New("zone not found")

// ErrGroupNotFound is returned for lookups against unknown group ids.
var ErrGroupNotFound = errors.New("volume group not found")

// ErrDeviceNotFound is returned for device addresses outside the active config.
var ErrDeviceNotFound = errors.New("output device not found")

// Service exposes zone and volume-group operations to the control surface.
type Service struct {
	store     *Store
	carVolume *CarVolume
	sink      EventSink
	logger    *logrus.Logger

	// userAssigned runs after an occupant is bound to a zone, so sibling
	// layers can reload per-user policy.
	userAssigned func(zoneID, userID int)
}

// SetUserAssignedHook installs the occupant-change callback. Must be called
// before the service handles traffic.
func (s *Service) SetUserAssignedHook(hook func(zoneID, userID int)) {
	s.userAssigned = hook
}

// NewService creates a volume service. A nil logger falls back to the
// standard logger; a nil sink disables event fan-out.
func NewService(store *Store, carVolume *CarVolume, sink EventSink, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:     store,
		carVolume: carVolume,
		sink:      sink,
		logger:    logger,
	}
}

// Store exposes the zone store for sibling packages (focus, mirror).
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) zone(zoneID int) (*Zone, error) {
	zone := s.store.Zone(zoneID)
	if zone == nil {
		return nil, fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	return zone, nil
}

func (s *Service) group(zoneID, groupID int) (*Group, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return nil, err
	}
	group := zone.CurrentConfig().Group(groupID)
	if group == nil {
		return nil, fmt.Errorf("%w: zone %d group %d", ErrGroupNotFound, zoneID, groupID)
	}
	return group, nil
}

// ZoneSummary is the external view of a zone.
type ZoneSummary struct {
	ZoneID        int         `json:"zone_id"`
	Name          string      `json:"name"`
	Primary       bool        `json:"primary"`
	UserID        int         `json:"user_id"`
	CurrentConfig string      `json:"current_config"`
	Groups        []GroupInfo `json:"groups"`
}

func summarize(zone *Zone) ZoneSummary {
	config := zone.CurrentConfig()
	groups := config.Groups()
	infos := make([]GroupInfo, 0, len(groups))
	for _, group := range groups {
		infos = append(infos, group.Snapshot())
	}
	return ZoneSummary{
		ZoneID:        zone.ID(),
		Name:          zone.Name(),
		Primary:       zone.IsPrimary(),
		UserID:        zone.UserID(),
		CurrentConfig: config.Name(),
		Groups:        infos,
	}
}

// ListZones returns a summary of every zone.
func (s *Service) ListZones() []ZoneSummary {
	zones := s.store.Zones()
	summaries := make([]ZoneSummary, 0, len(zones))
	for _, zone := range zones {
		summaries = append(summaries, summarize(zone))
	}
	return summaries
}

// GetZone returns one zone's summary.
func (s *Service) GetZone(zoneID int) (ZoneSummary, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return ZoneSummary{}, err
	}
	return summarize(zone), nil
}

// GetGroup returns a group snapshot from a zone's active config.
func (s *Service) GetGroup(zoneID, groupID int) (GroupInfo, error) {
	group, err := s.group(zoneID, groupID)
	if err != nil {
		return GroupInfo{}, err
	}
	return group.Snapshot(), nil
}

// SetGroupVolume applies a user volume change and fans out the result.
func (s *Service) SetGroupVolume(zoneID, groupID, index int) (GroupInfo, error) {
	group, err := s.group(zoneID, groupID)
	if err != nil {
		return GroupInfo{}, err
	}
	if err := group.SetCurrentGainIndex(index); err != nil {
		return GroupInfo{}, err
	}
	info := group.Snapshot()
	s.publish(info, EventGainIndexChanged)
	return info, nil
}

// SetGroupMute sets or clears the user mute. The returned bool reports
// whether the request took effect; an unmute against hardware mute does not.
func (s *Service) SetGroupMute(zoneID, groupID int, muted bool) (GroupInfo, bool, error) {
	group, err := s.group(zoneID, groupID)
	if err != nil {
		return GroupInfo{}, false, err
	}
	applied := group.SetMute(muted)
	info := group.Snapshot()
	if applied {
		s.publish(info, EventMuteChanged)
	}
	return info, applied, nil
}

// SwitchZoneConfig activates a different config in a zone.
func (s *Service) SwitchZoneConfig(zoneID, configID int) (ZoneSummary, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return ZoneSummary{}, err
	}
	if err := zone.SwitchConfig(configID); err != nil {
		return ZoneSummary{}, err
	}
	return summarize(zone), nil
}

// AssignUser binds an occupant to a zone and reloads their settings.
func (s *Service) AssignUser(zoneID, userID int) (ZoneSummary, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return ZoneSummary{}, err
	}
	zone.AssignUser(userID)
	if s.userAssigned != nil {
		s.userAssigned(zoneID, userID)
	}
	s.logger.WithFields(logrus.Fields{
		"zone": zoneID, "user": userID,
	}).Info("occupant assigned to zone")
	return summarize(zone), nil
}

// HandleGainEvent feeds one hardware gain report into a zone and fans out
// the per-group changes that resulted.
func (s *Service) HandleGainEvent(zoneID int, reasons []GainReason, gains []GainConfig) ([]GroupInfo, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return nil, err
	}
	groupEvents := zone.OnAudioGainChanged(reasons, gains)
	infos := make([]GroupInfo, 0, len(groupEvents))
	for _, ge := range groupEvents {
		info := ge.Group.Snapshot()
		infos = append(infos, info)
		s.publish(info, ge.Events)
	}
	return infos, nil
}

// HandleDeviceRangeChange feeds a hardware-reported gain range change for one
// device into its zone. A recompute that moved anything observable is fanned
// out; a no-op recompute returns nil without publishing.
func (s *Service) HandleDeviceRangeChange(zoneID int, address string, gain audio.GainInfo) (*GroupInfo, error) {
	zone, err := s.zone(zoneID)
	if err != nil {
		return nil, err
	}
	event, changed, err := zone.OnDeviceGainRangeChanged(address, gain)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	info := event.Group.Snapshot()
	s.publish(info, event.Events)
	return &info, nil
}

// SuggestedContext picks the context volume keys should act on for a zone.
func (s *Service) SuggestedContext(zoneID int, callState CallState, active []audio.Context,
	halUsages []audio.Usage) (audio.Context, error) {
	if _, err := s.zone(zoneID); err != nil {
		return audio.ContextInvalid, err
	}
	return s.carVolume.SuggestedContext(callState, active, halUsages), nil
}

func (s *Service) publish(info GroupInfo, events EventType) {
	if s.sink == nil {
		return
	}
	s.sink.PublishVolumeEvent(info, events)
	s.logger.WithFields(logrus.Fields{
		"zone":   info.ZoneID,
		"group":  info.GroupID,
		"events": events.String(),
	}).Debug("volume event published")
}
