package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/audio"
)

// recordingSink collects published volume events.
type recordingSink struct {
	infos  []GroupInfo
	events []EventType
}

func (s *recordingSink) PublishVolumeEvent(info GroupInfo, events EventType) {
	s.infos = append(s.infos, info)
	s.events = append(s.events, events)
}

func newTestService(t *testing.T, sink EventSink) *Service {
	t.Helper()
	settings := newStubSettings()
	driver, err := NewZone(0, "driver", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus0"),
	}, nil)
	require.NoError(t, err)
	rear, err := NewZone(1, "rear", []*ZoneConfig{
		buildTestConfig(t, settings, 0, true, "bus1"),
		buildTestConfig(t, settings, 1, false, "bus2"),
	}, nil)
	require.NoError(t, err)
	store, err := NewStore([]*Zone{driver, rear})
	require.NoError(t, err)

	carVolume, err := NewCarVolume(VolumePriorityVersionOne)
	require.NoError(t, err)
	return NewService(store, carVolume, sink, nil)
}

func TestService_ListAndGetZones(t *testing.T) {
	service := newTestService(t, nil)

	summaries := service.ListZones()
	require.Len(t, summaries, 2)
	require.True(t, summaries[0].Primary)
	require.False(t, summaries[1].Primary)

	summary, err := service.GetZone(1)
	require.NoError(t, err)
	require.Equal(t, "rear", summary.Name)
	require.Len(t, summary.Groups, 1)

	_, err = service.GetZone(9)
	require.ErrorIs(t, err, ErrZoneNotFound)
}

func TestService_SetGroupVolumePublishes(t *testing.T) {
	sink := &recordingSink{}
	service := newTestService(t, sink)

	info, err := service.SetGroupVolume(0, 0, 7)
	require.NoError(t, err)
	require.Equal(t, 7, info.CurrentIndex)
	require.Len(t, sink.events, 1)
	require.Equal(t, EventGainIndexChanged, sink.events[0])

	_, err = service.SetGroupVolume(0, 9, 7)
	require.ErrorIs(t, err, ErrGroupNotFound)
	_, err = service.SetGroupVolume(9, 0, 7)
	require.ErrorIs(t, err, ErrZoneNotFound)
	_, err = service.SetGroupVolume(0, 0, 99)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestService_SetGroupMute(t *testing.T) {
	sink := &recordingSink{}
	service := newTestService(t, sink)

	info, applied, err := service.SetGroupMute(0, 0, true)
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, info.Muted)
	require.Len(t, sink.events, 1)
	require.Equal(t, EventMuteChanged, sink.events[0])

	// An unmute refused by hardware mute publishes nothing.
	_, err = service.HandleGainEvent(0, []GainReason{ReasonTCUMute},
		[]GainConfig{{Address: "bus0", VolumeIndex: 5}})
	require.NoError(t, err)
	published := len(sink.events)

	info, applied, err = service.SetGroupMute(0, 0, false)
	require.NoError(t, err)
	require.False(t, applied)
	require.True(t, info.Muted)
	require.Len(t, sink.events, published)
}

func TestService_SwitchZoneConfigAndAssignUser(t *testing.T) {
	service := newTestService(t, nil)

	var hookZone, hookUser int
	service.SetUserAssignedHook(func(zoneID, userID int) {
		hookZone, hookUser = zoneID, userID
	})

	summary, err := service.SwitchZoneConfig(1, 1)
	require.NoError(t, err)
	require.Equal(t, "bus2", summary.CurrentConfig)

	_, err = service.SwitchZoneConfig(1, 9)
	require.Error(t, err)

	summary, err = service.AssignUser(1, 7)
	require.NoError(t, err)
	require.Equal(t, 7, summary.UserID)
	require.Equal(t, 1, hookZone)
	require.Equal(t, 7, hookUser)
}

func TestService_HandleGainEvent(t *testing.T) {
	sink := &recordingSink{}
	service := newTestService(t, sink)

	infos, err := service.HandleGainEvent(0,
		[]GainReason{ReasonThermalLimitation},
		[]GainConfig{{Address: "bus0", VolumeIndex: 3}})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.True(t, infos[0].Limited)
	require.Len(t, sink.events, 1)
	require.True(t, sink.events[0].Has(EventAttenuationChanged))

	// Duplicate reports publish nothing further.
	infos, err = service.HandleGainEvent(0,
		[]GainReason{ReasonThermalLimitation},
		[]GainConfig{{Address: "bus0", VolumeIndex: 3}})
	require.NoError(t, err)
	require.Empty(t, infos)
	require.Len(t, sink.events, 1)

	_, err = service.HandleGainEvent(9, nil, nil)
	require.ErrorIs(t, err, ErrZoneNotFound)
}

func TestService_SuggestedContext(t *testing.T) {
	service := newTestService(t, nil)

	context, err := service.SuggestedContext(0, CallStateOffHook,
		[]audio.Context{audio.ContextMusic}, nil)
	require.NoError(t, err)
	require.Equal(t, audio.ContextCall, context)

	// HAL-side playback participates without any mixer activity.
	context, err = service.SuggestedContext(0, CallStateIdle, nil,
		[]audio.Usage{audio.UsageAlarm})
	require.NoError(t, err)
	require.Equal(t, audio.ContextAlarm, context)

	_, err = service.SuggestedContext(9, CallStateIdle, nil, nil)
	require.ErrorIs(t, err, ErrZoneNotFound)
}

func TestService_HandleDeviceRangeChange(t *testing.T) {
	sink := &recordingSink{}
	service := newTestService(t, sink)

	info, err := service.HandleDeviceRangeChange(0, "bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, 20, info.MaxIndex)
	require.Len(t, sink.events, 1)
	require.True(t, sink.events[0].Has(EventMaxIndexChanged))

	// Re-reporting the same range changes nothing and publishes nothing.
	info, err = service.HandleDeviceRangeChange(0, "bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.NoError(t, err)
	require.Nil(t, info)
	require.Len(t, sink.events, 1)

	_, err = service.HandleDeviceRangeChange(9, "bus0",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.ErrorIs(t, err, ErrZoneNotFound)
	_, err = service.HandleDeviceRangeChange(0, "bus9",
		audio.GainInfo{MinMb: 0, MaxMb: 200, DefaultMb: 50, StepMb: 10})
	require.ErrorIs(t, err, ErrDeviceNotFound)
}
