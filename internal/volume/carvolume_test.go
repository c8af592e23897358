package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

func TestNewCarVolume_UnknownVersion(t *testing.T) {
	_, err := NewCarVolume(3)
	require.Error(t, err)
}

func TestSuggestedContext_DefaultsToMusic(t *testing.T) {
	carVolume, err := NewCarVolume(VolumePriorityVersionOne)
	require.NoError(t, err)

	require.Equal(t, audio.ContextMusic,
		carVolume.SuggestedContext(CallStateIdle, nil, nil))
}

func TestSuggestedContext_HalUsages(t *testing.T) {
	carVolume, err := NewCarVolume(VolumePriorityVersionOne)
	require.NoError(t, err)

	// Hardware-side playback counts as audible even with nothing in the
	// platform mixer.
	require.Equal(t, audio.ContextNavigation,
		carVolume.SuggestedContext(CallStateIdle, nil,
			[]audio.Usage{audio.UsageAssistanceNavigationGuidance}))

	// HAL usages rank against playback contexts through the same table.
	require.Equal(t, audio.ContextCall,
		carVolume.SuggestedContext(CallStateIdle,
			[]audio.Context{audio.ContextMusic},
			[]audio.Usage{audio.UsageVoiceCommunication}))

	// Unmappable usages are ignored.
	require.Equal(t, audio.ContextMusic,
		carVolume.SuggestedContext(CallStateIdle, nil,
			[]audio.Usage{audio.Usage(99)}))
}

func TestSuggestedContext_VersionOnePriorities(t *testing.T) {
	carVolume, err := NewCarVolume(VolumePriorityVersionOne)
	require.NoError(t, err)

	// Navigation outranks everything in the v1 table.
	require.Equal(t, audio.ContextNavigation,
		carVolume.SuggestedContext(CallStateOffHook,
			[]audio.Context{audio.ContextMusic, audio.ContextNavigation}, nil))

	// An active call outranks media.
	require.Equal(t, audio.ContextCall,
		carVolume.SuggestedContext(CallStateOffHook,
			[]audio.Context{audio.ContextMusic}, nil))

	// In v1 media even outranks the ringer.
	require.Equal(t, audio.ContextMusic,
		carVolume.SuggestedContext(CallStateRinging,
			[]audio.Context{audio.ContextMusic}, nil))

	require.Equal(t, audio.ContextCallRing,
		carVolume.SuggestedContext(CallStateRinging, nil, nil))
}

func TestSuggestedContext_VersionTwoPriorities(t *testing.T) {
	carVolume, err := NewCarVolume(VolumePriorityVersionTwo)
	require.NoError(t, err)

	// The v2 table is call-first and much shorter.
	require.Equal(t, audio.ContextCall,
		carVolume.SuggestedContext(CallStateOffHook,
			[]audio.Context{audio.ContextMusic, audio.ContextNavigation}, nil))

	require.Equal(t, audio.ContextVoiceCommand,
		carVolume.SuggestedContext(CallStateIdle,
			[]audio.Context{audio.ContextVoiceCommand}, nil))

	// Contexts outside the table fall through to the Music default.
	require.Equal(t, audio.ContextMusic,
		carVolume.SuggestedContext(CallStateIdle,
			[]audio.Context{audio.ContextAlarm}, nil))
}

func TestCallState_String(t *testing.T) {
	require.Equal(t, "IDLE", CallStateIdle.String())
	require.Equal(t, "RINGING", CallStateRinging.String())
	require.Equal(t, "OFFHOOK", CallStateOffHook.String())
}
