package focus

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// ChangeEvent is one focus transition delivered to a client. Transient and
// permanent losses carry the holders still active afterwards plus an optional
// fade selection, so the platform can shape the transition.
type ChangeEvent struct {
	ClientID      string                   `json:"client_id"`
	ZoneID        int                      `json:"zone_id"`
	Change        string                   `json:"change"`
	Entry         EntryInfo                `json:"entry"`
	ActiveHolders []EntryInfo              `json:"active_holders,omitempty"`
	Fade          *audio.FadeConfiguration `json:"fade,omitempty"`
}

// Dispatcher delivers focus change events. Dispatch happens while the engine
// lock is held, so implementations must not block; the events hub enqueues.
type Dispatcher interface {
	DispatchFocusChange(event ChangeEvent)
}

// EngineConfig wires one zone's focus engine.
type EngineConfig struct {
	ZoneID     int
	Matrix     *InteractionMatrix
	Dispatcher Dispatcher
	Logger     *logrus.Logger

	// FadeByUsage overrides the fade selection per usage; DefaultFade
	// covers the rest. SuppressDefaultFade drops the fallback, which is
	// the behavior of the primary zone's default config.
	FadeByUsage         map[audio.Usage]audio.FadeConfiguration
	DefaultFade         *audio.FadeConfiguration
	SuppressDefaultFade bool
}

// Engine arbitrates audio focus for a single zone. One lock guards the
// holder and loser sets plus the single delayed slot; every operation takes
// and releases it exactly once.
type Engine struct {
	mu sync.Mutex

	zoneID     int
	matrix     *InteractionMatrix
	dispatcher Dispatcher
	logger     *logrus.Logger

	holders map[string]*entry
	losers  map[string]*entry
	delayed *entry

	restricted bool

	fadeByUsage         map[audio.Usage]audio.FadeConfiguration
	defaultFade         *audio.FadeConfiguration
	suppressDefaultFade bool
}

// NewEngine builds a zone focus engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	matrix := cfg.Matrix
	if matrix == nil {
		matrix = NewInteractionMatrix()
	}
	return &Engine{
		zoneID:              cfg.ZoneID,
		matrix:              matrix,
		dispatcher:          cfg.Dispatcher,
		logger:              logger,
		holders:             make(map[string]*entry),
		losers:              make(map[string]*entry),
		fadeByUsage:         cfg.FadeByUsage,
		defaultFade:         cfg.DefaultFade,
		suppressDefaultFade: cfg.SuppressDefaultFade,
	}
}

func (e *Engine) ZoneID() int { return e.zoneID }

// RequestFocus evaluates one focus ask against the current holders and
// losers. The result is synchronous; a DELAYED result parks the request
// until its blockers go away.
func (e *Engine) RequestFocus(req Request) RequestResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.evaluateRequestLocked(req)
	e.logger.WithFields(logrus.Fields{
		"zone":   e.zoneID,
		"client": req.ClientID,
		"usage":  req.Attributes.Usage.String(),
		"gain":   req.GainType.String(),
		"result": result.String(),
	}).Info("focus request evaluated")
	return result
}

func (e *Engine) evaluateRequestLocked(req Request) RequestResult {
	incoming := newEntry(req)
	if !incoming.context.IsValid() {
		return RequestFailed
	}

	if e.restricted && !req.Attributes.IsCritical() {
		if req.AcceptsDelayed && req.GainType == GainPermanent {
			return e.parkDelayedLocked(incoming)
		}
		return RequestFailed
	}

	// A client with a parked delayed request owns exactly one slot. A
	// different-context ask from it is refused; a same-context ask
	// supersedes the parked one.
	if e.delayed != nil && e.delayed.clientID() == req.ClientID {
		if e.delayed.context != incoming.context {
			return RequestFailed
		}
		e.delayed = nil
	}

	// A client re-requesting with a different context is refused outright.
	// The telephony stack is the exception: one client swaps between ring
	// and call legs.
	replaced := e.findClientLocked(req.ClientID)
	if replaced != nil && replaced.context != incoming.context {
		if !(replaced.context.IsRingerOrCall() && incoming.context.IsRingerOrCall()) {
			return RequestFailed
		}
	}

	// A transient-exclusive holder suppresses notifications entirely.
	if req.Attributes.IsNotification() {
		for _, holder := range e.holders {
			if holder != replaced && holder.request.GainType == GainTransientExclusive {
				return RequestFailed
			}
		}
		for _, loser := range e.losers {
			if loser != replaced && loser.request.GainType == GainTransientExclusive {
				return RequestFailed
			}
		}
	}

	type plannedLoss struct {
		entry  *entry
		change ChangeType
	}
	var holderLosses []plannedLoss
	var loserBlocks []*entry
	var loserPermanentLosses []*entry
	var loserDuckUpgrades []*entry

	for _, holder := range e.holders {
		if holder == replaced {
			continue
		}
		switch e.matrix.Evaluate(holder.context, incoming.context) {
		case InteractionReject:
			if req.AcceptsDelayed {
				return e.parkDelayedLocked(incoming)
			}
			return RequestFailed
		case InteractionExclusive:
			change := ChangeLossTransient
			if req.GainType == GainPermanent {
				change = ChangeLoss
			}
			holderLosses = append(holderLosses, plannedLoss{entry: holder, change: change})
		case InteractionConcurrent:
			if req.GainType != GainTransientMayDuck {
				continue
			}
			change := ChangeLossTransientCanDuck
			if holder.request.PausesOnDuck {
				change = ChangeLossTransient
			}
			holderLosses = append(holderLosses, plannedLoss{entry: holder, change: change})
		}
	}

	for _, loser := range e.losers {
		if loser == replaced {
			continue
		}
		switch e.matrix.Evaluate(loser.context, incoming.context) {
		case InteractionReject:
			if req.AcceptsDelayed {
				return e.parkDelayedLocked(incoming)
			}
			return RequestFailed
		case InteractionExclusive:
			if req.GainType == GainPermanent {
				loserPermanentLosses = append(loserPermanentLosses, loser)
				continue
			}
			if loser.ducked {
				loserDuckUpgrades = append(loserDuckUpgrades, loser)
			}
			loserBlocks = append(loserBlocks, loser)
		case InteractionConcurrent:
			if req.GainType != GainTransientMayDuck {
				continue
			}
			if loser.ducked && loser.request.PausesOnDuck {
				loserDuckUpgrades = append(loserDuckUpgrades, loser)
			}
			loserBlocks = append(loserBlocks, loser)
		}
	}

	// Committed. Drop the replaced entry silently and hand its blocking
	// role over to the incoming entry.
	if replaced != nil {
		e.removeSilentlyLocked(replaced)
		for _, loser := range e.losers {
			if e.hasBlocker(loser, replaced) {
				loser.removeBlocker(replaced)
				loser.addBlocker(incoming)
			}
		}
	}

	// Settle the holder set before dispatching, so loss events observe the
	// post-grant holders (the winner included).
	var permanentLosses []*entry
	e.holders[incoming.clientID()] = incoming
	for _, loss := range holderLosses {
		delete(e.holders, loss.entry.clientID())
		loss.entry.ducked = loss.change == ChangeLossTransientCanDuck
		if loss.change == ChangeLoss {
			loss.entry.receivedPermanentLoss = true
			permanentLosses = append(permanentLosses, loss.entry)
			continue
		}
		loss.entry.addBlocker(incoming)
		e.losers[loss.entry.clientID()] = loss.entry
	}
	for _, loss := range holderLosses {
		e.dispatchLocked(loss.entry, loss.change)
	}

	for _, loser := range loserPermanentLosses {
		delete(e.losers, loser.clientID())
		loser.receivedPermanentLoss = true
		permanentLosses = append(permanentLosses, loser)
		e.dispatchLocked(loser, ChangeLoss)
	}
	for _, loser := range loserDuckUpgrades {
		loser.ducked = false
		e.dispatchLocked(loser, ChangeLossTransient)
	}
	for _, loser := range loserBlocks {
		loser.addBlocker(incoming)
	}

	// An entry that permanently lost stops blocking anyone. Scrub it from
	// the remaining losers, promote whoever it alone was holding back, and
	// give the delayed request another look at the freed space.
	for _, dead := range permanentLosses {
		e.settleAfterRemovalLocked(dead)
	}

	return RequestGranted
}

func (e *Engine) parkDelayedLocked(incoming *entry) RequestResult {
	if e.delayed != nil && e.delayed.clientID() != incoming.clientID() {
		displaced := e.delayed
		e.delayed = nil
		displaced.receivedPermanentLoss = true
		e.dispatchLocked(displaced, ChangeLoss)
	}
	e.delayed = incoming
	return RequestDelayed
}

// AbandonFocus releases a client's focus, granting whatever it was holding
// back: the delayed request gets another try, and unblocked losers are
// promoted back to holders.
func (e *Engine) AbandonFocus(clientID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.delayed != nil && e.delayed.clientID() == clientID {
		e.delayed = nil
		return true
	}
	departed := e.findClientLocked(clientID)
	if departed == nil {
		return false
	}
	e.removeSilentlyLocked(departed)
	e.settleAfterRemovalLocked(departed)
	return true
}

// RemoveAndTransientlyLose strips a client's focus with a transient loss
// callback. Used when the occupant or routing changes under a client.
func (e *Engine) RemoveAndTransientlyLose(clientID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	departed := e.findClientLocked(clientID)
	if departed == nil {
		if e.delayed != nil && e.delayed.clientID() == clientID {
			e.delayed = nil
			return true
		}
		return false
	}
	e.removeSilentlyLocked(departed)
	e.dispatchLocked(departed, ChangeLossTransient)
	e.settleAfterRemovalLocked(departed)
	return true
}

// RegainFocus silently lifts a client's entry and runs it through evaluation
// again, as if freshly requested. Used after zone or policy changes. An entry
// that no longer passes evaluation is dropped with a permanent loss.
func (e *Engine) RegainFocus(clientID string) RequestResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.findClientLocked(clientID)
	if existing == nil {
		return RequestFailed
	}
	e.removeSilentlyLocked(existing)
	e.settleAfterRemovalLocked(existing)
	result := e.evaluateRequestLocked(existing.request)
	if result == RequestFailed {
		existing.receivedPermanentLoss = true
		e.dispatchLocked(existing, ChangeLoss)
	}
	return result
}

// ResumeFocus re-evaluates a request whose entry was already stripped, for
// clients suspended around an occupant change. A regain arrives as an
// asynchronous GAIN, matching the delayed-grant path.
func (e *Engine) ResumeFocus(req Request) RequestResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := e.evaluateRequestLocked(req)
	if result == RequestGranted {
		e.dispatchLocked(e.holders[req.ClientID], ChangeGain)
	}
	return result
}

// RequestForClient returns the original request behind a present entry.
func (e *Engine) RequestForClient(clientID string) (Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if found := e.findClientLocked(clientID); found != nil {
		return found.request, true
	}
	return Request{}, false
}

// SetRestrictFocus enables or clears the focus lockout. Enabling abandons
// every non-critical entry with a permanent loss; emergency and safety
// sounds ride through.
func (e *Engine) SetRestrictFocus(restricted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.restricted = restricted
	if !restricted {
		return
	}

	var removed []*entry
	for _, holder := range e.holders {
		if !holder.request.Attributes.IsCritical() {
			removed = append(removed, holder)
		}
	}
	for _, loser := range e.losers {
		if !loser.request.Attributes.IsCritical() {
			removed = append(removed, loser)
		}
	}
	for _, victim := range removed {
		e.removeSilentlyLocked(victim)
		victim.receivedPermanentLoss = true
		e.dispatchLocked(victim, ChangeLoss)
	}
	if e.delayed != nil && !e.delayed.request.Attributes.IsCritical() {
		displaced := e.delayed
		e.delayed = nil
		displaced.receivedPermanentLoss = true
		e.dispatchLocked(displaced, ChangeLoss)
	}
	for _, victim := range removed {
		e.settleAfterRemovalLocked(victim)
	}
}

// findClientLocked looks a client up among holders and losers.
func (e *Engine) findClientLocked(clientID string) *entry {
	if holder, ok := e.holders[clientID]; ok {
		return holder
	}
	if loser, ok := e.losers[clientID]; ok {
		return loser
	}
	return nil
}

func (e *Engine) removeSilentlyLocked(victim *entry) {
	delete(e.holders, victim.clientID())
	delete(e.losers, victim.clientID())
}

func (e *Engine) hasBlocker(loser, blocker *entry) bool {
	for _, existing := range loser.blockers {
		if existing == blocker {
			return true
		}
	}
	return false
}

// settleAfterRemovalLocked runs after an entry leaves: the delayed request
// gets first shot at the freed space, then losers no longer blocked by
// anything are promoted with a GAIN callback.
func (e *Engine) settleAfterRemovalLocked(departed *entry) {
	if e.delayed != nil {
		parked := e.delayed
		e.delayed = nil
		result := e.evaluateRequestLocked(parked.request)
		switch result {
		case RequestGranted:
			// Delayed grants arrive asynchronously.
			e.dispatchLocked(e.holders[parked.clientID()], ChangeGain)
		case RequestFailed:
			parked.receivedPermanentLoss = true
			e.dispatchLocked(parked, ChangeLoss)
		}
	}

	var promoted []*entry
	for _, loser := range e.losers {
		loser.removeBlocker(departed)
		if loser.isUnblocked() {
			promoted = append(promoted, loser)
		}
	}
	sort.Slice(promoted, func(i, j int) bool {
		return promoted[i].clientID() < promoted[j].clientID()
	})
	for _, winner := range promoted {
		delete(e.losers, winner.clientID())
		winner.ducked = false
		e.holders[winner.clientID()] = winner
		e.dispatchLocked(winner, ChangeGain)
	}
}

func (e *Engine) dispatchLocked(target *entry, change ChangeType) {
	if e.dispatcher == nil || target == nil {
		return
	}
	event := ChangeEvent{
		ClientID: target.clientID(),
		ZoneID:   e.zoneID,
		Change:   change.String(),
		Entry:    target.info(),
	}
	if change == ChangeLoss || change == ChangeLossTransient {
		event.ActiveHolders = e.holderInfosLocked(target.clientID())
		event.Fade = e.selectFadeLocked(target.request.Attributes)
	}
	e.dispatcher.DispatchFocusChange(event)
}

// selectFadeLocked picks the fade configuration for a loss: a per-usage
// override first, the default second, nothing when defaults are suppressed.
func (e *Engine) selectFadeLocked(attributes audio.Attributes) *audio.FadeConfiguration {
	if cfg, ok := e.fadeByUsage[attributes.Usage]; ok {
		fade := cfg
		return &fade
	}
	if e.suppressDefaultFade || e.defaultFade == nil {
		return nil
	}
	fade := *e.defaultFade
	return &fade
}

func (e *Engine) holderInfosLocked(excludeClientID string) []EntryInfo {
	infos := make([]EntryInfo, 0, len(e.holders))
	for _, holder := range e.holders {
		if holder.clientID() == excludeClientID {
			continue
		}
		infos = append(infos, holder.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

// Holders returns the active focus holders in client-id order.
func (e *Engine) Holders() []EntryInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holderInfosLocked("")
}

// Losers returns the transiently blocked entries in client-id order.
func (e *Engine) Losers() []EntryInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	infos := make([]EntryInfo, 0, len(e.losers))
	for _, loser := range e.losers {
		infos = append(infos, loser.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

// Delayed returns the parked request, if any.
func (e *Engine) Delayed() (EntryInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.delayed == nil {
		return EntryInfo{}, false
	}
	return e.delayed.info(), true
}

// HoldersForUID returns the holders owned by a platform uid.
func (e *Engine) HoldersForUID(uid int) []EntryInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var infos []EntryInfo
	for _, holder := range e.holders {
		if holder.request.UID == uid {
			infos = append(infos, holder.info())
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

// HoldersForUserAndUsage returns the holders for one user playing one usage.
func (e *Engine) HoldersForUserAndUsage(userID int, usage audio.Usage) []EntryInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	var infos []EntryInfo
	for _, holder := range e.holders {
		if holder.request.UserID == userID && holder.request.Attributes.Usage == usage {
			infos = append(infos, holder.info())
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}

// ActiveContexts returns the contexts currently holding focus, for volume
// key targeting.
func (e *Engine) ActiveContexts() []audio.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[audio.Context]bool)
	var contexts []audio.Context
	for _, holder := range e.holders {
		if !seen[holder.context] {
			seen[holder.context] = true
			contexts = append(contexts, holder.context)
		}
	}
	sort.Slice(contexts, func(i, j int) bool { return contexts[i] < contexts[j] })
	return contexts
}
