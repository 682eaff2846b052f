package player

import (
	"log/slog"
	"math"
	"sync"
)

// Volume perception is roughly logarithmic; map the linear 0-100 scale
// onto a gentle exponential curve in base-2 volume units.
const (
	minGain      = -10.0
	volumeCurve  = 0.5
	maxVolumePct = 100
)

type gainSetter interface {
	SetGain(gain float64, silent bool)
}

// VolumeControl holds the volume and mute state for a session. Muting
// never alters the stored volume; unmuting restores exactly the prior
// audible level. The initial volume is seeded once from configuration,
// and the engine never writes changes back to configuration.
type VolumeControl struct {
	logger *slog.Logger
	engine gainSetter

	mu     sync.Mutex
	volume int
	muted  bool
}

// NewVolumeControl seeds the volume from the configuration value,
// clamping out-of-range seeds rather than failing.
func NewVolumeControl(seed int, logger *slog.Logger, engine gainSetter) *VolumeControl {
	v := &VolumeControl{
		logger: logger.With("module", "volume"),
		engine: engine,
	}
	if seed < 0 || seed > maxVolumePct {
		v.logger.Warn("seed volume out of range, clamping", "seed", seed)
	}
	v.volume = clampVolume(seed)
	v.apply()
	return v
}

// Set stores and applies a volume, clamping to [0,100].
func (v *VolumeControl) Set(volume int) {
	v.mu.Lock()
	v.volume = clampVolume(volume)
	v.mu.Unlock()
	v.apply()
}

// Get returns the stored volume, which is independent of mute.
func (v *VolumeControl) Get() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// SetMuted toggles mute without touching the stored volume.
func (v *VolumeControl) SetMuted(muted bool) {
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	v.apply()
}

// Muted reports the mute flag.
func (v *VolumeControl) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

func (v *VolumeControl) apply() {
	v.mu.Lock()
	volume, muted := v.volume, v.muted
	v.mu.Unlock()
	v.engine.SetGain(percentGain(volume), muted || volume == 0)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxVolumePct {
		return maxVolumePct
	}
	return v
}

// percentGain maps 0-100 to volume units for effects.Volume with Base 2:
// 100 is unity gain, lower values fall off toward minGain.
func percentGain(pct int) float64 {
	if pct <= 0 {
		return minGain
	}
	if pct >= maxVolumePct {
		return 0
	}
	return (1 - math.Pow(float64(pct)/maxVolumePct, volumeCurve)) * minGain
}
