package player

import (
	"testing"
	"time"
)

func TestConfigZeroValuesSelectDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.DefaultVolume != defaultVolume {
		t.Errorf("default volume %d, want %d", cfg.DefaultVolume, defaultVolume)
	}
	if cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("max retries %d, want %d", cfg.MaxRetries, defaultMaxRetries)
	}
	if cfg.BackoffMin != defaultBackoffMin || cfg.BackoffMax != defaultBackoffMax {
		t.Errorf("backoff %v..%v, want %v..%v", cfg.BackoffMin, cfg.BackoffMax, defaultBackoffMin, defaultBackoffMax)
	}
	if cfg.StallTimeout != defaultStallTimeout {
		t.Errorf("stall timeout %v, want %v", cfg.StallTimeout, defaultStallTimeout)
	}
	if cfg.StabilityWindow != defaultStabilityWindow {
		t.Errorf("stability window %v, want %v", cfg.StabilityWindow, defaultStabilityWindow)
	}
	if cfg.Prebuffer != defaultPrebuffer {
		t.Errorf("prebuffer %v, want %v", cfg.Prebuffer, defaultPrebuffer)
	}
}

func TestConfigExplicitValuesKept(t *testing.T) {
	in := Config{
		DefaultVolume:   10,
		MaxRetries:      -1, // recovery disabled
		BackoffMin:      2 * time.Second,
		BackoffMax:      time.Minute,
		StallTimeout:    5 * time.Second,
		StabilityWindow: time.Minute,
		Prebuffer:       time.Second,
		Wraparound:      true,
	}

	if got := in.withDefaults(); got != in {
		t.Errorf("explicit values rewritten:\n got %+v\nwant %+v", got, in)
	}
}
