package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

func buildTestConfig(t *testing.T, settings SettingsStore, configID int,
	isDefault bool, address string) *ZoneConfig {
	t.Helper()
	device := newTestDevice(address, defaultGain, nil)
	factory := NewGroupFactory(0, configID, 0, address, settings, nil)
	for _, context := range audio.AllContexts() {
		require.NoError(t, factory.SetDeviceInfoForContext(context, device))
	}
	group, err := factory.Build()
	require.NoError(t, err)
	config, err := NewZoneConfigBuilder(0, configID, address, isDefault, nil).
		AddVolumeGroup(group).
		Build()
	require.NoError(t, err)
	return config
}

func TestNewZone_RequiresSingleDefaultConfig(t *testing.T) {
	settings := newStubSettings()

	_, err := NewZone(0, "driver", nil, nil)
	require.Error(t, err)

	_, err = NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, false, "bus0"),
	}, nil)
	require.ErrorContains(t, err, "no default config")

	_, err = NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
		buildTestConfig(t, settings, 1, true, "bus1"),
	}, nil)
	require.ErrorContains(t, err, "more than one default")

	_, err = NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
		buildTestConfig(t, settings, 0, false, "bus1"),
	}, nil)
	require.ErrorContains(t, err, "duplicate config id")
}

func TestZone_SwitchConfig(t *testing.T) {
	settings := newStubSettings()
	zone, err := NewZone(1, "rear", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
		buildTestConfig(t, settings, 1, false, "bus1"),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, zone.CurrentConfig().ID())

	require.NoError(t, zone.SwitchConfig(1))
	require.Equal(t, 1, zone.CurrentConfig().ID())

	require.Error(t, zone.SwitchConfig(9))
	require.Equal(t, 1, zone.CurrentConfig().ID())
}

func TestZone_SwitchConfig_ReloadsOccupantSettings(t *testing.T) {
	settings := newStubSettings()
	// User 7 keeps index 2 on the alternate config's group.
	require.NoError(t, settings.StoreGainIndex(7, 0, 1, 0, 2))

	zone, err := NewZone(1, "rear", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
		buildTestConfig(t, settings, 1, false, "bus1"),
	}, nil)
	require.NoError(t, err)
	zone.AssignUser(7)

	require.NoError(t, zone.SwitchConfig(1))
	require.Equal(t, 2, zone.CurrentConfig().Group(0).CurrentGainIndex())
}

func TestZone_AssignUser_LoadsStoredState(t *testing.T) {
	settings := newStubSettings()
	require.NoError(t, settings.StoreGainIndex(7, 0, 0, 0, 8))
	require.NoError(t, settings.StoreMute(7, 0, 0, 0, true))

	zone, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)

	zone.AssignUser(7)
	require.Equal(t, 7, zone.UserID())
	group := zone.CurrentConfig().Group(0)
	require.Equal(t, 8, group.UnrestrictedGainIndex())
	require.True(t, group.IsUserMuted())
}

func TestZone_OnAudioGainChanged(t *testing.T) {
	settings := newStubSettings()
	zone, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)

	events := zone.OnAudioGainChanged(
		[]GainReason{ReasonThermalLimitation},
		[]GainConfig{
			{Address: "bus9_unknown", VolumeIndex: 3},
			{Address: "bus0", VolumeIndex: 4},
		})

	// The unknown address is skipped; the matching report still applies.
	require.Len(t, events, 1)
	require.Equal(t, 0, events[0].Group.ID())
	require.True(t, events[0].Events.Has(EventAttenuationChanged))
	require.True(t, events[0].Group.IsLimited())
}

func TestZone_OnDeviceGainRangeChanged(t *testing.T) {
	settings := newStubSettings()
	zone, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)

	// A wider hardware range grows the index space; the current index
	// keeps its millibel value.
	event, changed, err := zone.OnDeviceGainRangeChanged("bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, event.Events.Has(EventMaxIndexChanged))
	require.Equal(t, 20, event.Group.MaxGainIndex())

	// Re-reporting the same range is a no-op.
	_, changed, err = zone.OnDeviceGainRangeChanged("bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.NoError(t, err)
	require.False(t, changed)

	// Addresses outside the active config and unusable ranges are refused.
	_, _, err = zone.OnDeviceGainRangeChanged("bus9",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.ErrorIs(t, err, ErrDeviceNotFound)
	_, _, err = zone.OnDeviceGainRangeChanged("bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 0})
	require.Error(t, err)
}

func TestZone_GroupForContext(t *testing.T) {
	settings := newStubSettings()
	zone, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, zone.GroupForContext(audio.ContextCall))
	require.Nil(t, zone.GroupForContext(audio.ContextInvalid))
}

func TestNewStore_RequiresPrimaryZone(t *testing.T) {
	settings := newStubSettings()
	rear, err := NewZone(1, "rear", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus1"),
	}, nil)
	require.NoError(t, err)

	_, err = NewStore([]*Zone{rear})
	require.ErrorContains(t, err, "primary zone")

	driver, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)

	store, err := NewStore([]*Zone{rear, driver})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, store.ZoneIDs())
	require.Equal(t, 0, store.PrimaryZone().ID())
	require.True(t, store.PrimaryZone().IsPrimary())
	require.Nil(t, store.Zone(9))

	_, err = NewStore([]*Zone{driver, driver})
	require.ErrorContains(t, err, "duplicate zone id")
}
