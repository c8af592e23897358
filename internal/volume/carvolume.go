package volume

import (
	"fmt"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// CallState mirrors the telephony state feeding volume-context selection.
type CallState int

const (
	CallStateIdle CallState = iota
	CallStateRinging
	CallStateOffHook
)

func (s CallState) String() string {
	switch s {
	case CallStateIdle:
		return "IDLE"
	case CallStateRinging:
		return "RINGING"
	case CallStateOffHook:
		return "OFFHOOK"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// Volume key events land on whichever context is most relevant right now.
// Two priority generations exist; which one applies is a topology choice.
const (
	VolumePriorityVersionOne = 1
	VolumePriorityVersionTwo = 2
)

var volumePrioritiesV1 = []audio.Context{
	audio.ContextNavigation,
	audio.ContextCall,
	audio.ContextMusic,
	audio.ContextAnnouncement,
	audio.ContextVoiceCommand,
	audio.ContextCallRing,
	audio.ContextSystemSound,
	audio.ContextSafety,
	audio.ContextAlarm,
	audio.ContextNotification,
	audio.ContextVehicleStatus,
	audio.ContextEmergency,
}

var volumePrioritiesV2 = []audio.Context{
	audio.ContextCall,
	audio.ContextMusic,
	audio.ContextAnnouncement,
	audio.ContextVoiceCommand,
}

// CarVolume picks the context a volume key press should land on, given what
// is audible right now.
type CarVolume struct {
	priorities []audio.Context
}

// NewCarVolume selects a priority generation.
func NewCarVolume(version int) (*CarVolume, error) {
	switch version {
	case VolumePriorityVersionOne:
		return &CarVolume{priorities: volumePrioritiesV1}, nil
	case VolumePriorityVersionTwo:
		return &CarVolume{priorities: volumePrioritiesV2}, nil
	default:
		return nil, fmt.Errorf("unknown volume priority version %d", version)
	}
}

// SuggestedContext returns the highest-priority context among the active
// playback contexts, the call state and the usages the hardware reports as
// playing outside the platform mixer. With nothing active, volume keys
// default to Music.
func (v *CarVolume) SuggestedContext(callState CallState, active []audio.Context,
	halUsages []audio.Usage) audio.Context {
	audible := make(map[audio.Context]bool, len(active)+len(halUsages)+1)
	for _, context := range active {
		audible[context] = true
	}
	for _, usage := range halUsages {
		if context := audio.ContextForUsage(usage); context.IsValid() {
			audible[context] = true
		}
	}
	switch callState {
	case CallStateRinging:
		audible[audio.ContextCallRing] = true
	case CallStateOffHook:
		audible[audio.ContextCall] = true
	}
	for _, context := range v.priorities {
		if audible[context] {
			return context
		}
	}
	return audio.ContextMusic
}
