package focus

import (
	"fmt"
	"sync"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// Interaction is the outcome of pairing a focus holder's context with an
// incoming request's context.
type Interaction int

const (
	InteractionReject Interaction = iota
	InteractionExclusive
	InteractionConcurrent
)

func (i Interaction) String() string {
	switch i {
	case InteractionReject:
		return "REJECT"
	case InteractionExclusive:
		return "EXCLUSIVE"
	case InteractionConcurrent:
		return "CONCURRENT"
	default:
		return fmt.Sprintf("Interaction(%d)", int(i))
	}
}

// Shorthand for the matrix literal below.
const (
	mR = InteractionReject
	mE = InteractionExclusive
	mC = InteractionConcurrent
)

// interactionMatrix[holder][incoming]. Context order matches the audio
// package declaration: Invalid, Music, Navigation, VoiceCommand, CallRing,
// Call, Alarm, Notification, SystemSound, Emergency, Safety, VehicleStatus,
// Announcement.
var interactionMatrix = [13][13]Interaction{
	// holder: Invalid
	{mR, mR, mR, mR, mR, mR, mR, mR, mR, mE, mE, mE, mR},
	// holder: Music
	{mR, mE, mC, mE, mE, mE, mE, mC, mC, mE, mC, mC, mE},
	// holder: Navigation
	{mR, mC, mC, mE, mC, mE, mC, mC, mC, mE, mC, mC, mC},
	// holder: VoiceCommand
	{mR, mC, mR, mC, mE, mE, mR, mR, mR, mE, mC, mC, mR},
	// holder: CallRing
	{mR, mR, mC, mC, mC, mC, mR, mR, mC, mC, mC, mR, mR},
	// holder: Call
	{mR, mR, mC, mR, mC, mC, mC, mC, mR, mC, mC, mC, mR},
	// holder: Alarm
	{mR, mC, mC, mE, mE, mE, mC, mC, mC, mE, mC, mC, mC},
	// holder: Notification
	{mR, mC, mC, mE, mE, mE, mC, mC, mC, mE, mC, mC, mC},
	// holder: SystemSound
	{mR, mC, mC, mE, mE, mE, mC, mC, mC, mE, mC, mC, mC},
	// holder: Emergency
	{mR, mR, mR, mR, mR, mC, mR, mR, mR, mC, mC, mR, mR},
	// holder: Safety
	{mR, mC, mC, mC, mC, mC, mC, mC, mC, mC, mC, mC, mC},
	// holder: VehicleStatus
	{mR, mC, mC, mC, mC, mC, mC, mC, mC, mE, mC, mC, mC},
	// holder: Announcement
	{mR, mE, mC, mE, mE, mE, mE, mC, mC, mE, mC, mC, mE},
}

// InteractionMatrix evaluates holder/incoming context pairs, with a runtime
// toggle that rejects navigation prompts while a call holds focus.
type InteractionMatrix struct {
	mu                         sync.RWMutex
	rejectNavigationDuringCall bool
}

func NewInteractionMatrix() *InteractionMatrix {
	return &InteractionMatrix{}
}

// SetRejectNavigationDuringCall flips the navigation-during-call override.
func (m *InteractionMatrix) SetRejectNavigationDuringCall(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNavigationDuringCall = reject
}

// RejectNavigationDuringCall returns the current override state.
func (m *InteractionMatrix) RejectNavigationDuringCall() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rejectNavigationDuringCall
}

// Evaluate returns the interaction between a holder's context and an
// incoming request's context.
func (m *InteractionMatrix) Evaluate(holder, incoming audio.Context) Interaction {
	if holder < 0 || int(holder) >= len(interactionMatrix) ||
		incoming < 0 || int(incoming) >= len(interactionMatrix) {
		return InteractionReject
	}
	if holder == audio.ContextCall && incoming == audio.ContextNavigation {
		m.mu.RLock()
		reject := m.rejectNavigationDuringCall
		m.mu.RUnlock()
		if reject {
			return InteractionReject
		}
	}
	return interactionMatrix[holder][incoming]
}
