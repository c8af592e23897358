package volume

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// ErrIndexOutOfRange is returned for a gain index outside the group's range.
var ErrIndexOutOfRange = errors.New("gain index out of range")

// SettingsStore persists per-user volume state. Implemented by the settings
// package; the second return of the getters reports whether a row existed.
type SettingsStore interface {
	GainIndex(userID, zoneID, configID, groupID int) (int, bool, error)
	StoreGainIndex(userID, zoneID, configID, groupID, index int) error
	Mute(userID, zoneID, configID, groupID int) (bool, bool, error)
	StoreMute(userID, zoneID, configID, groupID int, muted bool) error
	IsPersistMuteEnabled(userID int) bool
}

// GroupInfo is a read-only snapshot of a group, safe to hand across package
// boundaries without holding the group lock.
type GroupInfo struct {
	ZoneID       int    `json:"zone_id"`
	ConfigID     int    `json:"config_id"`
	GroupID      int    `json:"group_id"`
	Name         string `json:"name"`
	MinIndex     int    `json:"min_index"`
	MaxIndex     int    `json:"max_index"`
	CurrentIndex int    `json:"current_index"`
	Muted        bool   `json:"muted"`
	Blocked      bool   `json:"blocked"`
	Attenuated   bool   `json:"attenuated"`
	Limited      bool   `json:"limited"`
}

// Group is the gain state machine for one volume group: a set of contexts
// sharing one logical gain control spread across one or more devices.
//
// Four restriction layers sit on top of the raw index. Resolution order is
// fixed: mute beats block beats limit beats attenuation beats the raw value.
type Group struct {
	mu sync.Mutex

	zoneID   int
	configID int
	id       int
	name     string

	settings SettingsStore
	logger   *logrus.Logger

	contextToAddress map[audio.Context]string
	devices          map[string]*audio.DeviceInfo

	gain   audio.GainInfo
	mapper GainIndexMapper

	userID           int
	storedGainIndex  int
	currentGainIndex int

	isUserMuted bool
	// Set only from hardware callbacks; a client unmute cannot clear it.
	isHalMuted bool

	isBlocked        bool
	blockedGainIndex int

	// limitedGainIndex == maxGainIndexLocked() means no limit.
	limitedGainIndex int

	isAttenuated        bool
	attenuatedGainIndex int
}

func (g *Group) ID() int       { return g.id }
func (g *Group) ZoneID() int   { return g.zoneID }
func (g *Group) ConfigID() int { return g.configID }
func (g *Group) Name() string  { return g.name }

// Contexts returns the contexts bound to this group, in stable order.
func (g *Group) Contexts() []audio.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	contexts := make([]audio.Context, 0, len(g.contextToAddress))
	for context := range g.contextToAddress {
		contexts = append(contexts, context)
	}
	sort.Slice(contexts, func(i, j int) bool { return contexts[i] < contexts[j] })
	return contexts
}

// AddressForContext returns the device address a context is routed to, or ""
// when the context is not part of this group.
func (g *Group) AddressForContext(context audio.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contextToAddress[context]
}

// Addresses returns every device address owned by the group.
func (g *Group) Addresses() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	addresses := make([]string, 0, len(g.devices))
	for address := range g.devices {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// DeviceForAddress returns the owned device handle for an address, or nil.
func (g *Group) DeviceForAddress(address string) *audio.DeviceInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.devices[address]
}

// HasDevice reports whether the group owns a device address.
func (g *Group) HasDevice(address string) bool {
	return g.DeviceForAddress(address) != nil
}

// UsagesForAddress returns every usage reachable through one of the group's
// device addresses. Used by zone-config validation for dynamic-mix checks.
func (g *Group) UsagesForAddress(address string) []audio.Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var usages []audio.Usage
	for context, boundAddress := range g.contextToAddress {
		if boundAddress != address {
			continue
		}
		usages = append(usages, audio.UsagesForContext(context)...)
	}
	return usages
}

func (g *Group) MinGainIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minGainIndexLocked()
}

func (g *Group) MaxGainIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxGainIndexLocked()
}

func (g *Group) DefaultGainIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mapper.IndexForGain(g.gain.DefaultMb)
}

func (g *Group) minGainIndexLocked() int {
	return g.mapper.IndexForGain(g.gain.MinMb)
}

func (g *Group) maxGainIndexLocked() int {
	return g.mapper.IndexForGain(g.gain.MaxMb)
}

func (g *Group) isValidGainIndexLocked(index int) bool {
	return index >= g.minGainIndexLocked() && index <= g.maxGainIndexLocked()
}

// CurrentGainIndex returns the effective index after restrictions. The whole
// read happens under the group lock so the four layers are observed as one
// snapshot.
func (g *Group) CurrentGainIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.restrictedGainIndexLocked(g.currentGainIndex)
}

// UnrestrictedGainIndex returns the raw index the user last chose,
// restrictions aside.
func (g *Group) UnrestrictedGainIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentGainIndex
}

func (g *Group) restrictedGainIndexLocked(index int) int {
	switch {
	case g.isFullyMutedLocked():
		return g.minGainIndexLocked()
	case g.isBlocked:
		return g.blockedGainIndex
	case g.isOverLimitLocked(index):
		return g.limitedGainIndex
	case g.isAttenuated:
		return g.attenuatedGainIndex
	default:
		return index
	}
}

func (g *Group) isFullyMutedLocked() bool {
	return g.isUserMuted || g.isHalMuted
}

func (g *Group) isOverLimitLocked(index int) bool {
	return index > g.limitedGainIndex
}

func (g *Group) isLimitedLocked() bool {
	return g.limitedGainIndex != g.maxGainIndexLocked()
}

// SetCurrentGainIndex applies a user-driven volume change. Out-of-range
// indexes fail with ErrIndexOutOfRange. While hardware-blocked the call is a
// silent no-op: hardware has final say. A requested index above the active
// limit is clamped to the limit. An explicit set clears attenuation and user
// mute, pushes the gain to every owned device and persists the new index.
func (g *Group) SetCurrentGainIndex(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.isValidGainIndexLocked(index) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrIndexOutOfRange,
			index, g.minGainIndexLocked(), g.maxGainIndexLocked())
	}
	if g.isBlocked {
		g.logger.WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id, "index": index,
		}).Info("volume change ignored while hardware blocked")
		return nil
	}
	if g.isOverLimitLocked(index) {
		g.logger.WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id, "index": index, "limit": g.limitedGainIndex,
		}).Info("volume change clamped to active limit")
		index = g.limitedGainIndex
	}
	g.resetAttenuationLocked()
	g.setUserMuteLocked(false)
	g.setCurrentGainIndexLocked(index)
	return nil
}

func (g *Group) setCurrentGainIndexLocked(index int) {
	g.currentGainIndex = index
	g.pushGainLocked()
	g.storedGainIndex = index
	if err := g.settings.StoreGainIndex(g.userID, g.zoneID, g.configID, g.id, index); err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id,
		}).Warn("failed to persist gain index")
	}
}

// pushGainLocked pushes the effective gain to every owned device. The push is
// a bounded fire-and-forget write into the HAL layer, safe under the lock.
func (g *Group) pushGainLocked() {
	gainMb := g.mapper.GainForIndex(g.restrictedGainIndexLocked(g.currentGainIndex))
	for _, device := range g.devices {
		device.SetCurrentGain(gainMb)
	}
}

// SetMute sets or clears the user mute. An unmute while hardware mute is
// active is refused and returns false; hardware mute is authoritative.
func (g *Group) SetMute(muted bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !muted && g.isHalMuted {
		g.logger.WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id,
		}).Info("unmute refused while hardware muted")
		return false
	}
	g.setUserMuteLocked(muted)
	g.pushGainLocked()
	return true
}

func (g *Group) setUserMuteLocked(muted bool) {
	g.isUserMuted = muted
	if g.settings.IsPersistMuteEnabled(g.userID) {
		if err := g.settings.StoreMute(g.userID, g.zoneID, g.configID, g.id, muted); err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"zone": g.zoneID, "group": g.id,
			}).Warn("failed to persist mute state")
		}
	}
}

// IsMuted reports whether the group is muted by either the user or hardware.
func (g *Group) IsMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isFullyMutedLocked()
}

func (g *Group) IsUserMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isUserMuted
}

func (g *Group) IsHalMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isHalMuted
}

func (g *Group) IsBlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBlocked
}

func (g *Group) IsAttenuated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isAttenuated
}

func (g *Group) IsLimited() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isLimitedLocked()
}

func (g *Group) resetAttenuationLocked() {
	g.isAttenuated = false
	g.attenuatedGainIndex = 0
}

func (g *Group) resetLimitLocked() {
	g.limitedGainIndex = g.maxGainIndexLocked()
}

// OnAudioGainChanged recomputes the restriction layers from one hardware gain
// report. Every report is the complete truth per dimension: a missing reason
// clears its layer. Returns the bitmask of dimensions that actually changed;
// a duplicate report yields EventNone. Unknown addresses and out-of-range
// indexes are rejected without touching state.
func (g *Group) OnAudioGainChanged(reasons []GainReason, gain GainConfig) (EventType, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.devices[gain.Address]; !ok {
		return EventNone, fmt.Errorf("device %q not in group %d", gain.Address, g.id)
	}
	index := gain.VolumeIndex
	if !g.isValidGainIndexLocked(index) {
		return EventNone, fmt.Errorf("%w: reported index %d not in [%d, %d]",
			ErrIndexOutOfRange, index, g.minGainIndexLocked(), g.maxGainIndexLocked())
	}

	events := EventNone

	if shouldBlockVolume(reasons) {
		if !g.isBlocked || g.blockedGainIndex != index {
			g.isBlocked = true
			g.blockedGainIndex = index
			events |= EventBlockedChanged
		}
	} else if g.isBlocked {
		g.isBlocked = false
		events |= EventBlockedChanged
	}

	if shouldLimitVolume(reasons) {
		if g.limitedGainIndex != index {
			g.limitedGainIndex = index
			events |= EventAttenuationChanged
		}
	} else if g.isLimitedLocked() {
		g.resetLimitLocked()
		events |= EventAttenuationChanged
	}

	if shouldDuckVolume(reasons) {
		if !g.isAttenuated || g.attenuatedGainIndex != index {
			g.isAttenuated = true
			g.attenuatedGainIndex = index
			events |= EventAttenuationChanged
		}
	} else if g.isAttenuated {
		g.resetAttenuationLocked()
		events |= EventAttenuationChanged
	}

	if shouldMuteVolumeGroup(reasons) {
		if !g.isHalMuted {
			g.isHalMuted = true
			events |= EventMuteChanged
		}
	} else if g.isHalMuted {
		g.isHalMuted = false
		events |= EventMuteChanged
	}

	if shouldUpdateVolumeIndex(reasons) && g.currentGainIndex != index {
		g.currentGainIndex = index
		events |= EventGainIndexChanged
	}

	return events, nil
}

// CalculateNewGainStageFromDeviceInfos recomputes the group's gain range
// after owned devices reported new hardware ranges. The user's perceived
// volume is preserved by converting the old indexes to millibels under the
// old range and re-deriving them under the new one; a restriction whose
// re-derived index is invalid is reset to its default state instead of being
// carried over broken.
func (g *Group) CalculateNewGainStageFromDeviceInfos() EventType {
	g.mu.Lock()
	defer g.mu.Unlock()

	oldMapper := g.mapper
	oldMaxIndex := g.maxGainIndexLocked()
	wasLimited := g.isLimitedLocked()

	newGain, err := unionGainInfo(g.devices)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id,
		}).Warn("ignoring gain stage recompute")
		return EventNone
	}
	if newGain == g.gain {
		return EventNone
	}

	g.gain = newGain
	g.mapper = GainIndexMapper{MinGainMb: newGain.MinMb, StepMb: newGain.StepMb}

	events := EventNone
	if g.maxGainIndexLocked() != oldMaxIndex {
		events |= EventMaxIndexChanged
	}

	// Carry the current index over by millibel value, falling back to the
	// new default when it no longer fits.
	previous := g.currentGainIndex
	rederived := g.mapper.IndexForGain(oldMapper.GainForIndex(previous))
	if !g.isValidGainIndexLocked(rederived) {
		rederived = g.mapper.IndexForGain(g.gain.DefaultMb)
	}
	if rederived != previous {
		g.currentGainIndex = rederived
		events |= EventGainIndexChanged
	} else {
		g.currentGainIndex = rederived
	}

	if wasLimited {
		limit := g.mapper.IndexForGain(oldMapper.GainForIndex(g.limitedGainIndex))
		if !g.isValidGainIndexLocked(limit) {
			limit = g.maxGainIndexLocked()
		}
		if limit != g.limitedGainIndex {
			g.limitedGainIndex = limit
			events |= EventAttenuationChanged
		}
	} else {
		g.resetLimitLocked()
	}

	if g.isBlocked {
		blocked := g.mapper.IndexForGain(oldMapper.GainForIndex(g.blockedGainIndex))
		if !g.isValidGainIndexLocked(blocked) {
			g.isBlocked = false
			g.blockedGainIndex = 0
			events |= EventBlockedChanged
		} else if blocked != g.blockedGainIndex {
			g.blockedGainIndex = blocked
			events |= EventBlockedChanged
		}
	}

	if g.isAttenuated {
		attenuated := g.mapper.IndexForGain(oldMapper.GainForIndex(g.attenuatedGainIndex))
		if !g.isValidGainIndexLocked(attenuated) {
			g.resetAttenuationLocked()
			events |= EventAttenuationChanged
		} else if attenuated != g.attenuatedGainIndex {
			g.attenuatedGainIndex = attenuated
			events |= EventAttenuationChanged
		}
	}

	g.pushGainLocked()
	return events
}

// LoadSettingsForUser rebinds the group to a user's persisted state and
// re-applies the resulting gain to the devices.
func (g *Group) LoadSettingsForUser(userID int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.userID = userID

	index, found, err := g.settings.GainIndex(userID, g.zoneID, g.configID, g.id)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"zone": g.zoneID, "group": g.id, "user": userID,
		}).Warn("failed to load stored gain index")
		found = false
	}
	if !found || !g.isValidGainIndexLocked(index) {
		index = g.mapper.IndexForGain(g.gain.DefaultMb)
	}
	g.storedGainIndex = index
	g.currentGainIndex = index

	if g.settings.IsPersistMuteEnabled(userID) {
		muted, foundMute, err := g.settings.Mute(userID, g.zoneID, g.configID, g.id)
		if err != nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"zone": g.zoneID, "group": g.id, "user": userID,
			}).Warn("failed to load stored mute")
		} else if foundMute {
			g.isUserMuted = muted
		}
	} else {
		g.isUserMuted = false
	}

	g.pushGainLocked()
}

// Snapshot returns a consistent read-only view of the group.
func (g *Group) Snapshot() GroupInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GroupInfo{
		ZoneID:       g.zoneID,
		ConfigID:     g.configID,
		GroupID:      g.id,
		Name:         g.name,
		MinIndex:     g.minGainIndexLocked(),
		MaxIndex:     g.maxGainIndexLocked(),
		CurrentIndex: g.restrictedGainIndexLocked(g.currentGainIndex),
		Muted:        g.isFullyMutedLocked(),
		Blocked:      g.isBlocked,
		Attenuated:   g.isAttenuated,
		Limited:      g.isLimitedLocked(),
	}
}

// unionGainInfo derives a group range from its devices: lowest min, highest
// max, highest default, common step.
func unionGainInfo(devices map[string]*audio.DeviceInfo) (audio.GainInfo, error) {
	var union audio.GainInfo
	first := true
	for _, device := range devices {
		gain := device.Gain()
		if first {
			union = gain
			first = false
			continue
		}
		if gain.StepMb != union.StepMb {
			return audio.GainInfo{}, fmt.Errorf(
				"device %s step %d differs from group step %d",
				device.Address(), gain.StepMb, union.StepMb)
		}
		if gain.MinMb < union.MinMb {
			union.MinMb = gain.MinMb
		}
		if gain.MaxMb > union.MaxMb {
			union.MaxMb = gain.MaxMb
		}
		if gain.DefaultMb > union.DefaultMb {
			union.DefaultMb = gain.DefaultMb
		}
	}
	if first {
		return audio.GainInfo{}, errors.New("volume group has no devices")
	}
	return union, nil
}
