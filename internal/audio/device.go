package audio

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// GainController pushes a millibel gain into the hardware layer for one
// output device. Implementations must be non-blocking; a push happens while
// the owning volume group's lock is held.
type GainController interface {
	SetGain(gainMb int) error
}

// NopGainController discards gain pushes. Used when no HAL binding is wired.
type NopGainController struct{}

func (NopGainController) SetGain(int) error { return nil }

// GainInfo describes a device's native gain range in millibels.
type GainInfo struct {
	MinMb     int `json:"min_mb" yaml:"min_mb"`
	MaxMb     int `json:"max_mb" yaml:"max_mb"`
	DefaultMb int `json:"default_mb" yaml:"default_mb"`
	StepMb    int `json:"step_mb" yaml:"step_mb"`
}

// Validate rejects ranges the index math cannot work with.
func (g GainInfo) Validate() error {
	if g.StepMb <= 0 {
		return fmt.Errorf("gain step must be positive, got %d", g.StepMb)
	}
	if g.MaxMb < g.MinMb {
		return fmt.Errorf("gain max %d below min %d", g.MaxMb, g.MinMb)
	}
	if g.DefaultMb < g.MinMb || g.DefaultMb > g.MaxMb {
		return fmt.Errorf("gain default %d outside [%d, %d]", g.DefaultMb, g.MinMb, g.MaxMb)
	}
	return nil
}

// DeviceInfo is the handle for one physical or logical output device. Bus
// devices exist from topology load; dynamic devices (headsets and the like)
// come and go and carry an active flag.
type DeviceInfo struct {
	mu sync.Mutex

	address    string
	dynamic    bool
	active     bool
	gain       GainInfo
	sampleRate int
	channels   int

	// Cleared permanently the first time a routing conflict is detected;
	// never set back to true for the life of the handle.
	canRouteWithDynamicMix bool

	currentGainMb int
	controller    GainController
	logger        *logrus.Logger
}

// NewDeviceInfo builds a device handle. The gain range must already be valid;
// topology loading validates before construction.
func NewDeviceInfo(address string, dynamic bool, gain GainInfo, controller GainController,
	logger *logrus.Logger) *DeviceInfo {
	if controller == nil {
		controller = NopGainController{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DeviceInfo{
		address:                address,
		dynamic:                dynamic,
		active:                 !dynamic,
		gain:                   gain,
		canRouteWithDynamicMix: true,
		currentGainMb:          gain.DefaultMb,
		controller:             controller,
		logger:                 logger,
	}
}

func (d *DeviceInfo) Address() string { return d.address }
func (d *DeviceInfo) IsDynamic() bool { return d.dynamic }

// Gain returns the device's native gain range.
func (d *DeviceInfo) Gain() GainInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

func (d *DeviceInfo) MinGain() int     { return d.Gain().MinMb }
func (d *DeviceInfo) MaxGain() int     { return d.Gain().MaxMb }
func (d *DeviceInfo) DefaultGain() int { return d.Gain().DefaultMb }
func (d *DeviceInfo) StepSize() int    { return d.Gain().StepMb }

// IsActive reports whether a dynamic device is currently connected. Bus
// devices are always active.
func (d *DeviceInfo) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// SetActive flips the connection state of a dynamic device. Deactivating
// resets the gain range back to defaults is the caller's concern; this only
// tracks presence.
func (d *DeviceInfo) SetActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
}

// CanRouteWithDynamicMix reports dynamic-mix routing eligibility.
func (d *DeviceInfo) CanRouteWithDynamicMix() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canRouteWithDynamicMix
}

// ResetDynamicMixRouting permanently revokes dynamic-mix eligibility.
func (d *DeviceInfo) ResetDynamicMixRouting() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.canRouteWithDynamicMix {
		d.logger.WithField("address", d.address).
			Warn("revoking dynamic mix routing eligibility")
	}
	d.canRouteWithDynamicMix = false
}

// SetCurrentGain clamps the requested millibel gain into the device range and
// forwards it to the gain controller. Push failures are logged, not
// propagated: hardware has final say and will report back through the gain
// callback path.
func (d *DeviceInfo) SetCurrentGain(gainMb int) {
	d.mu.Lock()
	if gainMb < d.gain.MinMb {
		gainMb = d.gain.MinMb
	}
	if gainMb > d.gain.MaxMb {
		gainMb = d.gain.MaxMb
	}
	d.currentGainMb = gainMb
	controller := d.controller
	d.mu.Unlock()

	if err := controller.SetGain(gainMb); err != nil {
		d.logger.WithFields(logrus.Fields{
			"address": d.address,
			"gain_mb": gainMb,
		}).WithError(err).Warn("gain push failed")
	}
}

// CurrentGain returns the last pushed millibel gain.
func (d *DeviceInfo) CurrentGain() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentGainMb
}

// UpdateGainInfo replaces the device's gain range after the hardware reports
// a new one (dynamic device pairing). Returns an error and leaves the range
// untouched when the reported range is unusable.
func (d *DeviceInfo) UpdateGainInfo(gain GainInfo) error {
	if err := gain.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain = gain
	return nil
}

// FadeConfiguration names a fade behavior selected at focus-loss time. The
// core only selects configurations; applying fades is the platform's job.
type FadeConfiguration struct {
	Name          string `json:"name" yaml:"name"`
	FadeOutMillis int64  `json:"fade_out_ms" yaml:"fade_out_ms"`
	FadeInMillis  int64  `json:"fade_in_ms" yaml:"fade_in_ms"`
}
