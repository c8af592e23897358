package focus

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
	"github.com/kmorales/car-audio-hub-go/internal/volume"
)

// ErrZoneNotFound is returned for requests against unknown zone ids.
var ErrZoneNotFound = errors.New("focus zone not found")

// FadePolicy configures fade selection for one engine set.
type FadePolicy struct {
	ByUsage map[audio.Usage]audio.FadeConfiguration
	Default *audio.FadeConfiguration
}

// Zones fans focus operations out to per-zone engines. Each zone arbitrates
// independently; the only cross-zone operation is the focus lockout.
type Zones struct {
	engines map[int]*Engine
	logger  *logrus.Logger
}

// NewZones builds one engine per zone in the store. The primary zone runs
// with the default fade suppressed; fades there are the platform's call.
func NewZones(store *volume.Store, dispatcher Dispatcher, fade FadePolicy,
	logger *logrus.Logger) *Zones {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	engines := make(map[int]*Engine)
	for _, zone := range store.Zones() {
		engines[zone.ID()] = NewEngine(EngineConfig{
			ZoneID:              zone.ID(),
			Matrix:              NewInteractionMatrix(),
			Dispatcher:          dispatcher,
			Logger:              logger,
			FadeByUsage:         fade.ByUsage,
			DefaultFade:         fade.Default,
			SuppressDefaultFade: zone.IsPrimary(),
		})
	}
	return &Zones{engines: engines, logger: logger}
}

// Engine returns the engine for a zone, or nil.
func (z *Zones) Engine(zoneID int) *Engine {
	return z.engines[zoneID]
}

// RequestFocus routes a request to its zone's engine.
func (z *Zones) RequestFocus(req Request) (RequestResult, error) {
	engine, ok := z.engines[req.ZoneID]
	if !ok {
		return RequestFailed, fmt.Errorf("%w: %d", ErrZoneNotFound, req.ZoneID)
	}
	return engine.RequestFocus(req), nil
}

// AbandonFocus releases a client's focus in a zone. Returns whether the
// client held or awaited anything.
func (z *Zones) AbandonFocus(zoneID int, clientID string) (bool, error) {
	engine, ok := z.engines[zoneID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	return engine.AbandonFocus(clientID), nil
}

// TransientlyLose strips a client with a transient loss callback.
func (z *Zones) TransientlyLose(zoneID int, clientID string) (bool, error) {
	engine, ok := z.engines[zoneID]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	return engine.RemoveAndTransientlyLose(clientID), nil
}

// SuspendMediaForUserSwitch suspends every media holder in a zone around an
// occupant change: each one transiently loses focus while the new occupant's
// settings bind, then is run through evaluation again and regains if the new
// policy still allows it.
func (z *Zones) SuspendMediaForUserSwitch(zoneID int) error {
	engine, ok := z.engines[zoneID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	mediaContext := audio.ContextMusic.String()
	for _, holder := range engine.Holders() {
		if holder.Context != mediaContext {
			continue
		}
		request, found := engine.RequestForClient(holder.ClientID)
		if !found {
			continue
		}
		if _, err := z.TransientlyLose(zoneID, holder.ClientID); err != nil {
			return err
		}
		result := engine.ResumeFocus(request)
		z.logger.WithFields(logrus.Fields{
			"zone":   zoneID,
			"client": holder.ClientID,
			"result": result.String(),
		}).Info("media holder re-evaluated after occupant change")
	}
	return nil
}

// SetRestrictFocus applies the focus lockout to every zone at once.
func (z *Zones) SetRestrictFocus(restricted bool) {
	for _, engine := range z.engines {
		engine.SetRestrictFocus(restricted)
	}
	z.logger.WithField("restricted", restricted).Info("focus restriction updated")
}

// SetRejectNavigationDuringCall flips the per-zone navigation override.
// Tightening the policy re-evaluates active navigation holders, so a prompt
// already playing over a call loses focus instead of riding the old matrix.
func (z *Zones) SetRejectNavigationDuringCall(zoneID int, reject bool) error {
	engine, ok := z.engines[zoneID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	engine.matrix.SetRejectNavigationDuringCall(reject)
	if !reject {
		return nil
	}
	navContext := audio.ContextNavigation.String()
	for _, holder := range engine.Holders() {
		if holder.Context == navContext {
			engine.RegainFocus(holder.ClientID)
		}
	}
	return nil
}

// ZoneState is the externally visible focus state of one zone.
type ZoneState struct {
	ZoneID  int         `json:"zone_id"`
	Holders []EntryInfo `json:"holders"`
	Losers  []EntryInfo `json:"losers"`
	Delayed *EntryInfo  `json:"delayed,omitempty"`
}

// State snapshots one zone's focus stacks.
func (z *Zones) State(zoneID int) (ZoneState, error) {
	engine, ok := z.engines[zoneID]
	if !ok {
		return ZoneState{}, fmt.Errorf("%w: %d", ErrZoneNotFound, zoneID)
	}
	state := ZoneState{
		ZoneID:  zoneID,
		Holders: engine.Holders(),
		Losers:  engine.Losers(),
	}
	if delayed, ok := engine.Delayed(); ok {
		state.Delayed = &delayed
	}
	return state, nil
}
