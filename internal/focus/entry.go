package focus

import (
	"fmt"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// GainType is the kind of focus a client asks for.
type GainType int

const (
	// GainPermanent displaces conflicting holders for good.
	GainPermanent GainType = iota
	// GainTransient displaces conflicting holders until abandoned.
	GainTransient
	// GainTransientMayDuck lets concurrent holders keep playing quietly.
	GainTransientMayDuck
	// GainTransientExclusive silences everything else, notifications included.
	GainTransientExclusive
)

func (g GainType) String() string {
	switch g {
	case GainPermanent:
		return "GAIN"
	case GainTransient:
		return "GAIN_TRANSIENT"
	case GainTransientMayDuck:
		return "GAIN_TRANSIENT_MAY_DUCK"
	case GainTransientExclusive:
		return "GAIN_TRANSIENT_EXCLUSIVE"
	default:
		return fmt.Sprintf("GainType(%d)", int(g))
	}
}

// GainTypeByName resolves the wire name of a gain type.
func GainTypeByName(name string) (GainType, bool) {
	switch name {
	case "GAIN":
		return GainPermanent, true
	case "GAIN_TRANSIENT":
		return GainTransient, true
	case "GAIN_TRANSIENT_MAY_DUCK":
		return GainTransientMayDuck, true
	case "GAIN_TRANSIENT_EXCLUSIVE":
		return GainTransientExclusive, true
	default:
		return GainPermanent, false
	}
}

// ChangeType is a focus state transition delivered to a client.
type ChangeType int

const (
	ChangeGain ChangeType = iota
	ChangeLoss
	ChangeLossTransient
	ChangeLossTransientCanDuck
)

func (c ChangeType) String() string {
	switch c {
	case ChangeGain:
		return "GAIN"
	case ChangeLoss:
		return "LOSS"
	case ChangeLossTransient:
		return "LOSS_TRANSIENT"
	case ChangeLossTransientCanDuck:
		return "LOSS_TRANSIENT_CAN_DUCK"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// RequestResult is the synchronous answer to a focus request.
type RequestResult int

const (
	RequestFailed RequestResult = iota
	RequestGranted
	RequestDelayed
)

func (r RequestResult) String() string {
	switch r {
	case RequestFailed:
		return "FAILED"
	case RequestGranted:
		return "GRANTED"
	case RequestDelayed:
		return "DELAYED"
	default:
		return fmt.Sprintf("RequestResult(%d)", int(r))
	}
}

// Request is one focus ask from a client.
type Request struct {
	ClientID   string
	ZoneID     int
	UserID     int
	UID        int
	Attributes audio.Attributes
	GainType   GainType
	// AcceptsDelayed converts a would-be rejection into a parked request
	// that is granted once its blockers go away.
	AcceptsDelayed bool
	// PausesOnDuck means the client stops instead of lowering volume, so a
	// ducking winner must hand it a transient loss.
	PausesOnDuck bool
}

// entry is the engine-internal record of a granted, blocked, or delayed
// request. All fields are guarded by the owning engine's lock.
type entry struct {
	request Request
	context audio.Context

	// blockers holds the entries whose presence keeps this one a loser.
	// Empty blockers on a loser means it is due for promotion.
	blockers []*entry

	// ducked marks a holder currently playing at reduced volume under a
	// GAIN_TRANSIENT_MAY_DUCK winner.
	ducked bool

	// receivedPermanentLoss marks an entry already told LOSS; it never
	// comes back and exists only until cleanup.
	receivedPermanentLoss bool
}

func newEntry(request Request) *entry {
	return &entry{
		request: request,
		context: request.Attributes.Context(),
	}
}

func (e *entry) clientID() string { return e.request.ClientID }

func (e *entry) addBlocker(blocker *entry) {
	for _, existing := range e.blockers {
		if existing == blocker {
			return
		}
	}
	e.blockers = append(e.blockers, blocker)
}

func (e *entry) removeBlocker(blocker *entry) {
	for i, existing := range e.blockers {
		if existing == blocker {
			e.blockers = append(e.blockers[:i], e.blockers[i+1:]...)
			return
		}
	}
}

func (e *entry) isUnblocked() bool { return len(e.blockers) == 0 }

// EntryInfo is the externally visible form of a focus entry.
type EntryInfo struct {
	ClientID string `json:"client_id"`
	ZoneID   int    `json:"zone_id"`
	UserID   int    `json:"user_id"`
	Usage    string `json:"usage"`
	Context  string `json:"context"`
	GainType string `json:"gain_type"`
	Ducked   bool   `json:"ducked,omitempty"`
	Blocked  bool   `json:"blocked,omitempty"`
}

func (e *entry) info() EntryInfo {
	return EntryInfo{
		ClientID: e.request.ClientID,
		ZoneID:   e.request.ZoneID,
		UserID:   e.request.UserID,
		Usage:    e.request.Attributes.Usage.String(),
		Context:  e.context.String(),
		GainType: e.request.GainType.String(),
		Ducked:   e.ducked,
		Blocked:  !e.isUnblocked(),
	}
}
