package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// buildGroup routes the given contexts to one device and builds the group.
func buildGroup(t *testing.T, settings SettingsStore, groupID int,
	device *audio.DeviceInfo, contexts ...audio.Context) *Group {
	t.Helper()
	factory := NewGroupFactory(0, 0, groupID, device.Address(), settings, nil)
	for _, context := range contexts {
		require.NoError(t, factory.SetDeviceInfoForContext(context, device))
	}
	group, err := factory.Build()
	require.NoError(t, err)
	return group
}

// splitContexts carves all contexts into a media group and an everything-else
// group, the smallest layout that still passes coverage validation.
func splitContexts() (media, rest []audio.Context) {
	for _, context := range audio.AllContexts() {
		if context == audio.ContextMusic || context == audio.ContextAnnouncement {
			media = append(media, context)
		} else {
			rest = append(rest, context)
		}
	}
	return media, rest
}

func TestZoneConfigBuilder_Build(t *testing.T) {
	settings := newStubSettings()
	media, rest := splitContexts()
	mediaDevice := newTestDevice("bus0_media", defaultGain, nil)
	restDevice := newTestDevice("bus4_alarm", defaultGain, nil)

	config, err := NewZoneConfigBuilder(0, 0, "default", true, nil).
		AddVolumeGroup(buildGroup(t, settings, 0, mediaDevice, media...)).
		AddVolumeGroup(buildGroup(t, settings, 1, restDevice, rest...)).
		Build()
	require.NoError(t, err)

	require.True(t, config.IsDefault())
	require.Len(t, config.Groups(), 2)
	require.Equal(t, 0, config.GroupForContext(audio.ContextMusic).ID())
	require.Equal(t, 1, config.GroupForContext(audio.ContextSafety).ID())
	require.Equal(t, 1, config.GroupForAddress("bus4_alarm").ID())
	require.Nil(t, config.GroupForAddress("bus9_unknown"))
	require.Nil(t, config.Group(7))
}

func TestZoneConfigBuilder_RejectsEmptyConfig(t *testing.T) {
	_, err := NewZoneConfigBuilder(0, 0, "default", true, nil).Build()
	require.Error(t, err)
}

func TestZoneConfigBuilder_RejectsDuplicateContext(t *testing.T) {
	settings := newStubSettings()
	_, rest := splitContexts()
	mediaDevice := newTestDevice("bus0_media", defaultGain, nil)
	restDevice := newTestDevice("bus4_alarm", defaultGain, nil)

	// Music routed by both groups.
	_, err := NewZoneConfigBuilder(0, 0, "default", true, nil).
		AddVolumeGroup(buildGroup(t, settings, 0, mediaDevice,
			audio.ContextMusic, audio.ContextAnnouncement)).
		AddVolumeGroup(buildGroup(t, settings, 1, restDevice,
			append(rest, audio.ContextMusic)...)).
		Build()
	require.ErrorContains(t, err, "routed by groups")
}

func TestZoneConfigBuilder_RejectsMissingContext(t *testing.T) {
	settings := newStubSettings()
	media, rest := splitContexts()
	mediaDevice := newTestDevice("bus0_media", defaultGain, nil)
	restDevice := newTestDevice("bus4_alarm", defaultGain, nil)

	// Drop Safety from the layout.
	var incomplete []audio.Context
	for _, context := range rest {
		if context != audio.ContextSafety {
			incomplete = append(incomplete, context)
		}
	}
	_, err := NewZoneConfigBuilder(0, 0, "default", true, nil).
		AddVolumeGroup(buildGroup(t, settings, 0, mediaDevice, media...)).
		AddVolumeGroup(buildGroup(t, settings, 1, restDevice, incomplete...)).
		Build()
	require.ErrorContains(t, err, "not routed")
}

func TestZoneConfigBuilder_RejectsSharedDevice(t *testing.T) {
	settings := newStubSettings()
	media, rest := splitContexts()
	shared := newTestDevice("bus0_shared", defaultGain, nil)

	_, err := NewZoneConfigBuilder(0, 0, "default", true, nil).
		AddVolumeGroup(buildGroup(t, settings, 0, shared, media...)).
		AddVolumeGroup(buildGroup(t, settings, 1, shared, rest...)).
		Build()
	require.ErrorContains(t, err, "shared by groups")
}

func TestZoneConfigBuilder_CoreRoutingToleratesSharedDevice(t *testing.T) {
	settings := newStubSettings()
	media, rest := splitContexts()
	shared := newTestDevice("bus0_shared", defaultGain, nil)
	require.True(t, shared.CanRouteWithDynamicMix())

	config, err := NewZoneConfigBuilder(0, 0, "default", true, nil).
		UseCoreAudioRouting().
		AddVolumeGroup(buildGroup(t, settings, 0, shared, media...)).
		AddVolumeGroup(buildGroup(t, settings, 1, shared, rest...)).
		Build()
	require.NoError(t, err)
	require.NotNil(t, config)

	// The shared device pays with its dynamic-mix eligibility.
	require.False(t, shared.CanRouteWithDynamicMix())
}
