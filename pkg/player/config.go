package player

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultVolume          = 75
	defaultMaxRetries      = 5
	defaultBackoffMin      = 1 * time.Second
	defaultBackoffMax      = 16 * time.Second
	defaultStallTimeout    = 10 * time.Second
	defaultStabilityWindow = 30 * time.Second
	defaultPrebuffer       = 500 * time.Millisecond
)

// Config tunes one player. A zero value selects the corresponding
// default below, matching what flag registration applies; zero is not
// distinguishable from unset. A session that should start silent calls
// SetVolume(0) after construction rather than setting default-volume
// to 0, and supervised recovery is disabled with max-retries set to -1,
// which withDefaults passes through untouched.
type Config struct {
	DefaultVolume        int           `yaml:"default-volume,omitempty"`        // seed volume 0-100, applied once at session creation
	MaxRetries           int           `yaml:"max-retries,omitempty"`           // recovery attempts before the session is parked
	BackoffMin           time.Duration `yaml:"backoff-min,omitempty"`           // first recovery delay
	BackoffMax           time.Duration `yaml:"backoff-max,omitempty"`           // cap on the exponential recovery delay
	StallTimeout         time.Duration `yaml:"stall-timeout,omitempty"`         // buffering with no data for this long counts as a transport error
	StabilityWindow      time.Duration `yaml:"stability-window,omitempty"`      // uninterrupted playback that resets the failure counter
	Prebuffer            time.Duration `yaml:"prebuffer,omitempty"`             // audio to accumulate before leaving Buffering
	Wraparound           bool          `yaml:"wraparound,omitempty"`            // next at the last track wraps to the first
	AdvanceOnUnavailable bool          `yaml:"advance-on-unavailable,omitempty"` // skip to the next track when one has gone missing
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.DefaultVolume, util.PrefixConfig(prefix, "default-volume"), defaultVolume,
		"Initial volume (0-100) applied when a session starts.")
	f.IntVar(&cfg.MaxRetries, util.PrefixConfig(prefix, "max-retries"), defaultMaxRetries,
		"Supervised reconnect attempts before a session is parked in error.")
	f.DurationVar(&cfg.BackoffMin, util.PrefixConfig(prefix, "backoff-min"), defaultBackoffMin,
		"Delay before the first reconnect attempt. Doubles per attempt up to backoff-max.")
	f.DurationVar(&cfg.BackoffMax, util.PrefixConfig(prefix, "backoff-max"), defaultBackoffMax,
		"Maximum delay between reconnect attempts.")
	f.DurationVar(&cfg.StallTimeout, util.PrefixConfig(prefix, "stall-timeout"), defaultStallTimeout,
		"Buffering with no stream data for this long is treated as a transport error and recovered.")
	f.DurationVar(&cfg.StabilityWindow, util.PrefixConfig(prefix, "stability-window"), defaultStabilityWindow,
		"Uninterrupted playback after which the consecutive-failure counter resets.")
	f.DurationVar(&cfg.Prebuffer, util.PrefixConfig(prefix, "prebuffer"), defaultPrebuffer,
		"Decoded audio to accumulate before playback starts or resumes.")
	f.BoolVar(&cfg.Wraparound, util.PrefixConfig(prefix, "wraparound"), false,
		"Wrap track navigation and auto-advance past the ends of the playlist.")
	f.BoolVar(&cfg.AdvanceOnUnavailable, util.PrefixConfig(prefix, "advance-on-unavailable"), false,
		"Advance to the next track when the current one is gone from the host.")
}

// withDefaults fills zero values so a Config assembled in code (rather
// than through flags) behaves the same as the flag defaults.
func (cfg Config) withDefaults() Config {
	if cfg.DefaultVolume == 0 {
		cfg.DefaultVolume = defaultVolume
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.StabilityWindow == 0 {
		cfg.StabilityWindow = defaultStabilityWindow
	}
	if cfg.Prebuffer == 0 {
		cfg.Prebuffer = defaultPrebuffer
	}
	return cfg
}
