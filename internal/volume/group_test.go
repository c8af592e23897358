package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

type settingsKey struct {
	userID, zoneID, configID, groupID int
}

// stubSettings is an in-memory SettingsStore for tests.
type stubSettings struct {
	gains       map[settingsKey]int
	mutes       map[settingsKey]bool
	persistMute bool
}

func newStubSettings() *stubSettings {
	return &stubSettings{
		gains:       make(map[settingsKey]int),
		mutes:       make(map[settingsKey]bool),
		persistMute: true,
	}
}

func (s *stubSettings) GainIndex(userID, zoneID, configID, groupID int) (int, bool, error) {
	index, ok := s.gains[settingsKey{userID, zoneID, configID, groupID}]
	return index, ok, nil
}

func (s *stubSettings) StoreGainIndex(userID, zoneID, configID, groupID, index int) error {
	s.gains[settingsKey{userID, zoneID, configID, groupID}] = index
	return nil
}

func (s *stubSettings) Mute(userID, zoneID, configID, groupID int) (bool, bool, error) {
	muted, ok := s.mutes[settingsKey{userID, zoneID, configID, groupID}]
	return muted, ok, nil
}

func (s *stubSettings) StoreMute(userID, zoneID, configID, groupID int, muted bool) error {
	s.mutes[settingsKey{userID, zoneID, configID, groupID}] = muted
	return nil
}

func (s *stubSettings) IsPersistMuteEnabled(userID int) bool {
	return s.persistMute
}

// recordingController captures every gain pushed at a device.
type recordingController struct {
	pushed []int
}

func (c *recordingController) SetGain(gainMb int) error {
	c.pushed = append(c.pushed, gainMb)
	return nil
}

func (c *recordingController) last() (int, bool) {
	if len(c.pushed) == 0 {
		return 0, false
	}
	return c.pushed[len(c.pushed)-1], true
}

func newTestDevice(address string, gain audio.GainInfo, controller audio.GainController) *audio.DeviceInfo {
	return audio.NewDeviceInfo(address, false, gain, controller, nil)
}

// defaultGain is a [0, 100] mb range with step 10: indexes 0..10, default 5.
var defaultGain = audio.GainInfo{MinMb: 0, MaxMb: 100, DefaultMb: 50, StepMb: 10}

func newMediaGroup(t *testing.T, settings SettingsStore, devices ...*audio.DeviceInfo) *Group {
	t.Helper()
	if len(devices) == 0 {
		devices = []*audio.DeviceInfo{newTestDevice("bus0_media", defaultGain, nil)}
	}
	factory := NewGroupFactory(0, 0, 0, "media", settings, nil)
	contexts := []audio.Context{audio.ContextMusic, audio.ContextAnnouncement}
	for i, device := range devices {
		require.NoError(t, factory.SetDeviceInfoForContext(contexts[i], device))
	}
	group, err := factory.Build()
	require.NoError(t, err)
	return group
}

func TestGroup_Defaults(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	require.Equal(t, 0, group.MinGainIndex())
	require.Equal(t, 10, group.MaxGainIndex())
	require.Equal(t, 5, group.DefaultGainIndex())
	require.Equal(t, 5, group.CurrentGainIndex())
	require.False(t, group.IsMuted())
	require.False(t, group.IsBlocked())
	require.False(t, group.IsLimited())
	require.False(t, group.IsAttenuated())
}

func TestGroup_SetCurrentGainIndex(t *testing.T) {
	settings := newStubSettings()
	controller := &recordingController{}
	device := newTestDevice("bus0_media", defaultGain, controller)
	group := newMediaGroup(t, settings, device)

	require.NoError(t, group.SetCurrentGainIndex(8))
	require.Equal(t, 8, group.CurrentGainIndex())

	// Pushed to the device in millibels and persisted.
	gainMb, ok := controller.last()
	require.True(t, ok)
	require.Equal(t, 80, gainMb)
	stored, found, err := settings.GainIndex(0, 0, 0, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 8, stored)
}

func TestGroup_SetCurrentGainIndex_OutOfRange(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	require.ErrorIs(t, group.SetCurrentGainIndex(11), ErrIndexOutOfRange)
	require.ErrorIs(t, group.SetCurrentGainIndex(-1), ErrIndexOutOfRange)
	require.Equal(t, 5, group.CurrentGainIndex())
}

func TestGroup_SetCurrentGainIndex_BlockedIsNoOp(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	events, err := group.OnAudioGainChanged(
		[]GainReason{ReasonRemoteMute},
		GainConfig{Address: "bus0_media", VolumeIndex: 2})
	require.NoError(t, err)
	require.True(t, events.Has(EventBlockedChanged))
	require.Equal(t, 2, group.CurrentGainIndex())

	// Out-of-range still fails; in-range is silently dropped.
	require.ErrorIs(t, group.SetCurrentGainIndex(99), ErrIndexOutOfRange)
	require.NoError(t, group.SetCurrentGainIndex(9))
	require.Equal(t, 2, group.CurrentGainIndex())
	require.Equal(t, 5, group.UnrestrictedGainIndex())
}

func TestGroup_SetCurrentGainIndex_ClampedToLimit(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	events, err := group.OnAudioGainChanged(
		[]GainReason{ReasonThermalLimitation},
		GainConfig{Address: "bus0_media", VolumeIndex: 6})
	require.NoError(t, err)
	require.True(t, events.Has(EventAttenuationChanged))
	require.True(t, group.IsLimited())

	require.NoError(t, group.SetCurrentGainIndex(9))
	require.Equal(t, 6, group.CurrentGainIndex())
	require.Equal(t, 6, group.UnrestrictedGainIndex())
}

func TestGroup_SetCurrentGainIndex_ClearsAttenuationAndUserMute(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	_, err := group.OnAudioGainChanged(
		[]GainReason{ReasonNavDucking},
		GainConfig{Address: "bus0_media", VolumeIndex: 3})
	require.NoError(t, err)
	require.True(t, group.IsAttenuated())
	require.True(t, group.SetMute(true))
	require.True(t, group.IsMuted())

	require.NoError(t, group.SetCurrentGainIndex(7))
	require.False(t, group.IsAttenuated())
	require.False(t, group.IsMuted())
	require.Equal(t, 7, group.CurrentGainIndex())
}

func TestGroup_SetMute(t *testing.T) {
	settings := newStubSettings()
	group := newMediaGroup(t, settings)

	require.True(t, group.SetMute(true))
	require.True(t, group.IsUserMuted())
	// Muted groups read at the minimum index.
	require.Equal(t, 0, group.CurrentGainIndex())

	require.True(t, group.SetMute(false))
	require.False(t, group.IsMuted())
	require.Equal(t, 5, group.CurrentGainIndex())

	muted, found, err := settings.Mute(0, 0, 0, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, muted)
}

func TestGroup_SetMute_NotPersistedWhenDisabled(t *testing.T) {
	settings := newStubSettings()
	settings.persistMute = false
	group := newMediaGroup(t, settings)

	require.True(t, group.SetMute(true))
	_, found, err := settings.Mute(0, 0, 0, 0)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGroup_UnmuteRefusedWhileHalMuted(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	_, err := group.OnAudioGainChanged(
		[]GainReason{ReasonTCUMute},
		GainConfig{Address: "bus0_media", VolumeIndex: 5})
	require.NoError(t, err)
	require.True(t, group.IsHalMuted())

	require.False(t, group.SetMute(false))
	require.True(t, group.IsMuted())

	// Muting on top of hardware mute is still allowed.
	require.True(t, group.SetMute(true))
	require.True(t, group.IsUserMuted())
}

func TestGroup_OnAudioGainChanged_UnknownAddress(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	events, err := group.OnAudioGainChanged(
		[]GainReason{ReasonRemoteMute},
		GainConfig{Address: "bus9_unknown", VolumeIndex: 5})
	require.Error(t, err)
	require.Equal(t, EventNone, events)
	require.False(t, group.IsBlocked())
}

func TestGroup_OnAudioGainChanged_ReportedIndexOutOfRange(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	events, err := group.OnAudioGainChanged(
		[]GainReason{ReasonThermalLimitation},
		GainConfig{Address: "bus0_media", VolumeIndex: 42})
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.Equal(t, EventNone, events)
	require.False(t, group.IsLimited())
}

func TestGroup_OnAudioGainChanged_DuplicateReportIsIdempotent(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	report := GainConfig{Address: "bus0_media", VolumeIndex: 4}
	reasons := []GainReason{ReasonTCUMute, ReasonThermalLimitation}

	events, err := group.OnAudioGainChanged(reasons, report)
	require.NoError(t, err)
	require.True(t, events.Has(EventMuteChanged))
	require.True(t, events.Has(EventAttenuationChanged))

	events, err = group.OnAudioGainChanged(reasons, report)
	require.NoError(t, err)
	require.Equal(t, EventNone, events)
}

func TestGroup_OnAudioGainChanged_ClearsAbsentReasons(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	_, err := group.OnAudioGainChanged(
		[]GainReason{ReasonRemoteMute, ReasonADASDucking, ReasonTCUMute},
		GainConfig{Address: "bus0_media", VolumeIndex: 3})
	require.NoError(t, err)
	require.True(t, group.IsBlocked())
	require.True(t, group.IsAttenuated())
	require.True(t, group.IsHalMuted())

	// Each report carries the full truth: an empty reason list clears all.
	events, err := group.OnAudioGainChanged(nil,
		GainConfig{Address: "bus0_media", VolumeIndex: 3})
	require.NoError(t, err)
	require.True(t, events.Has(EventBlockedChanged))
	require.True(t, events.Has(EventAttenuationChanged))
	require.True(t, events.Has(EventMuteChanged))
	require.False(t, group.IsBlocked())
	require.False(t, group.IsAttenuated())
	require.False(t, group.IsHalMuted())
}

func TestGroup_OnAudioGainChanged_VolumeIndexUpdate(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())

	events, err := group.OnAudioGainChanged(
		[]GainReason{ReasonGainIndexChanged},
		GainConfig{Address: "bus0_media", VolumeIndex: 9})
	require.NoError(t, err)
	require.Equal(t, EventGainIndexChanged, events)
	require.Equal(t, 9, group.CurrentGainIndex())
}

func TestGroup_RestrictionPriority(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())
	require.NoError(t, group.SetCurrentGainIndex(9))

	// Stack every restriction at distinct indexes.
	_, err := group.OnAudioGainChanged(
		[]GainReason{ReasonRemoteMute, ReasonThermalLimitation, ReasonADASDucking, ReasonTCUMute},
		GainConfig{Address: "bus0_media", VolumeIndex: 4})
	require.NoError(t, err)

	// Mute wins over everything.
	require.Equal(t, 0, group.CurrentGainIndex())

	// Clear the mute: block wins next.
	_, err = group.OnAudioGainChanged(
		[]GainReason{ReasonRemoteMute, ReasonThermalLimitation, ReasonADASDucking},
		GainConfig{Address: "bus0_media", VolumeIndex: 4})
	require.NoError(t, err)
	require.Equal(t, 4, group.CurrentGainIndex())

	// Clear the block: the limit caps the raw index of 9 down to 6.
	_, err = group.OnAudioGainChanged(
		[]GainReason{ReasonThermalLimitation, ReasonADASDucking},
		GainConfig{Address: "bus0_media", VolumeIndex: 6})
	require.NoError(t, err)
	require.Equal(t, 6, group.CurrentGainIndex())

	// Clear the limit: attenuation applies.
	_, err = group.OnAudioGainChanged(
		[]GainReason{ReasonADASDucking},
		GainConfig{Address: "bus0_media", VolumeIndex: 3})
	require.NoError(t, err)
	require.Equal(t, 3, group.CurrentGainIndex())

	// Clear everything: the raw index shows again.
	_, err = group.OnAudioGainChanged(nil,
		GainConfig{Address: "bus0_media", VolumeIndex: 3})
	require.NoError(t, err)
	require.Equal(t, 9, group.CurrentGainIndex())
}

func TestGroup_GainStageRecompute_PreservesPerceivedVolume(t *testing.T) {
	device := newTestDevice("bus0_media", defaultGain, nil)
	group := newMediaGroup(t, newStubSettings(), device)
	require.NoError(t, group.SetCurrentGainIndex(5)) // 50 mb

	// Halve the step: the same millibel value lands on a new index.
	require.NoError(t, device.UpdateGainInfo(audio.GainInfo{
		MinMb: 0, MaxMb: 100, DefaultMb: 50, StepMb: 5,
	}))
	events := group.CalculateNewGainStageFromDeviceInfos()
	require.True(t, events.Has(EventGainIndexChanged))
	require.True(t, events.Has(EventMaxIndexChanged))
	require.Equal(t, 20, group.MaxGainIndex())
	require.Equal(t, 10, group.CurrentGainIndex()) // still 50 mb
}

func TestGroup_GainStageRecompute_InvalidCarryOverResets(t *testing.T) {
	device := newTestDevice("bus0_media", defaultGain, nil)
	group := newMediaGroup(t, newStubSettings(), device)
	require.NoError(t, group.SetCurrentGainIndex(9)) // 90 mb

	// Shrink the range so 90 mb no longer fits: fall back to the new default.
	require.NoError(t, device.UpdateGainInfo(audio.GainInfo{
		MinMb: 0, MaxMb: 50, DefaultMb: 20, StepMb: 10,
	}))
	events := group.CalculateNewGainStageFromDeviceInfos()
	require.True(t, events.Has(EventMaxIndexChanged))
	require.Equal(t, 5, group.MaxGainIndex())
	require.Equal(t, 2, group.CurrentGainIndex())
}

func TestGroup_GainStageRecompute_UnchangedRangeIsNoOp(t *testing.T) {
	group := newMediaGroup(t, newStubSettings())
	require.Equal(t, EventNone, group.CalculateNewGainStageFromDeviceInfos())
}

func TestGroup_LoadSettingsForUser(t *testing.T) {
	settings := newStubSettings()
	require.NoError(t, settings.StoreGainIndex(7, 0, 0, 0, 3))
	require.NoError(t, settings.StoreMute(7, 0, 0, 0, true))

	group := newMediaGroup(t, settings)
	group.LoadSettingsForUser(7)

	require.Equal(t, 3, group.UnrestrictedGainIndex())
	require.True(t, group.IsUserMuted())
}

func TestGroup_LoadSettingsForUser_InvalidStoredIndexFallsBack(t *testing.T) {
	settings := newStubSettings()
	require.NoError(t, settings.StoreGainIndex(7, 0, 0, 0, 42))

	group := newMediaGroup(t, settings)
	group.LoadSettingsForUser(7)

	require.Equal(t, 5, group.CurrentGainIndex())
}

func TestGroup_LoadSettingsForUser_MuteIgnoredWhenPersistDisabled(t *testing.T) {
	settings := newStubSettings()
	require.NoError(t, settings.StoreMute(7, 0, 0, 0, true))
	settings.persistMute = false

	group := newMediaGroup(t, settings)
	group.LoadSettingsForUser(7)

	require.False(t, group.IsMuted())
}

func TestGroupFactory_RejectsDuplicateContext(t *testing.T) {
	factory := NewGroupFactory(0, 0, 0, "media", newStubSettings(), nil)
	device := newTestDevice("bus0_media", defaultGain, nil)

	require.NoError(t, factory.SetDeviceInfoForContext(audio.ContextMusic, device))
	require.Error(t, factory.SetDeviceInfoForContext(audio.ContextMusic, device))
}

func TestGroupFactory_RejectsInvalidContext(t *testing.T) {
	factory := NewGroupFactory(0, 0, 0, "media", newStubSettings(), nil)
	device := newTestDevice("bus0_media", defaultGain, nil)

	require.Error(t, factory.SetDeviceInfoForContext(audio.ContextInvalid, device))
}

func TestGroupFactory_RejectsStepMismatch(t *testing.T) {
	factory := NewGroupFactory(0, 0, 0, "media", newStubSettings(), nil)
	first := newTestDevice("bus0_media", defaultGain, nil)
	second := newTestDevice("bus1_announce", audio.GainInfo{
		MinMb: 0, MaxMb: 100, DefaultMb: 50, StepMb: 25,
	}, nil)

	require.NoError(t, factory.SetDeviceInfoForContext(audio.ContextMusic, first))
	require.Error(t, factory.SetDeviceInfoForContext(audio.ContextAnnouncement, second))
}

func TestGroupFactory_EmptyGroupFails(t *testing.T) {
	factory := NewGroupFactory(0, 0, 0, "media", newStubSettings(), nil)
	_, err := factory.Build()
	require.Error(t, err)
}

func TestGroupFactory_UnionGainRange(t *testing.T) {
	factory := NewGroupFactory(0, 0, 0, "media", newStubSettings(), nil)
	first := newTestDevice("bus0_media", audio.GainInfo{
		MinMb: -200, MaxMb: 50, DefaultMb: 0, StepMb: 10,
	}, nil)
	second := newTestDevice("bus1_announce", audio.GainInfo{
		MinMb: 0, MaxMb: 100, DefaultMb: 50, StepMb: 10,
	}, nil)

	require.NoError(t, factory.SetDeviceInfoForContext(audio.ContextMusic, first))
	require.NoError(t, factory.SetDeviceInfoForContext(audio.ContextAnnouncement, second))
	group, err := factory.Build()
	require.NoError(t, err)

	// Lowest min, highest max, highest default.
	require.Equal(t, 0, group.MinGainIndex())
	require.Equal(t, 30, group.MaxGainIndex()) // -200..100 at step 10
	require.Equal(t, 25, group.DefaultGainIndex())
}

func TestEventType_String(t *testing.T) {
	require.Equal(t, "NONE", EventNone.String())
	require.Equal(t, "GAIN_INDEX|MUTE",
		(EventGainIndexChanged | EventMuteChanged).String())
	require.Equal(t, "BLOCKED", EventBlockedChanged.String())
}
