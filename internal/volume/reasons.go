package volume

// GainReason is a hardware-reported cause attached to a gain callback. Each
// report carries the complete current truth: a reason absent from the list
// clears the corresponding restriction.
type GainReason string

const (
	ReasonRemoteMute        GainReason = "REMOTE_MUTE"
	ReasonForcedMasterMute  GainReason = "FORCED_MASTER_MUTE"
	ReasonTCUMute           GainReason = "TCU_MUTE"
	ReasonThermalLimitation GainReason = "THERMAL_LIMITATION"
	ReasonSuspendExitLimit  GainReason = "SUSPEND_EXIT_VOL_LIMITATION"
	ReasonADASDucking       GainReason = "ADAS_DUCKING"
	ReasonNavDucking        GainReason = "NAV_DUCKING"
	ReasonProjectionDucking GainReason = "PROJECTION_DUCKING"
	ReasonGainIndexChanged  GainReason = "VOLUME_GAIN_INDEX_CHANGED"
	ReasonOther             GainReason = "OTHER"
)

// GainConfig is one hardware gain report for a single device address.
type GainConfig struct {
	Address     string `json:"address"`
	VolumeIndex int    `json:"volume_index"`
}

func containsAny(reasons []GainReason, wanted ...GainReason) bool {
	for _, reason := range reasons {
		for _, want := range wanted {
			if reason == want {
				return true
			}
		}
	}
	return false
}

func shouldBlockVolume(reasons []GainReason) bool {
	return containsAny(reasons, ReasonRemoteMute, ReasonForcedMasterMute)
}

func shouldLimitVolume(reasons []GainReason) bool {
	return containsAny(reasons, ReasonThermalLimitation, ReasonSuspendExitLimit)
}

func shouldDuckVolume(reasons []GainReason) bool {
	return containsAny(reasons, ReasonADASDucking, ReasonNavDucking, ReasonProjectionDucking)
}

func shouldMuteVolumeGroup(reasons []GainReason) bool {
	return containsAny(reasons, ReasonTCUMute)
}

func shouldUpdateVolumeIndex(reasons []GainReason) bool {
	return containsAny(reasons, ReasonGainIndexChanged)
}
