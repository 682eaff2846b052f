package player

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions       *prometheus.CounterVec
	errors            *prometheus.CounterVec
	recoveryAttempts  prometheus.Counter
	recoveryExhausted prometheus.Counter
	stalls            prometheus.Counter
	tracksAdvanced    prometheus.Counter
}

// newMetrics builds the player metric set. A nil registerer produces
// working but unregistered metrics, which is what tests use.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_state_transitions_total",
			Help:      "Playback state transitions by resulting state.",
		}, []string{"to"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_errors_total",
			Help:      "Playback failures by error kind.",
		}, []string{"kind"}),
		recoveryAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_recovery_attempts_total",
			Help:      "Supervised reconnect attempts issued.",
		}),
		recoveryExhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_recovery_exhausted_total",
			Help:      "Sessions parked after the retry budget ran out.",
		}),
		stalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_stalls_total",
			Help:      "Buffering stalls treated as transport errors.",
		}),
		tracksAdvanced: f.NewCounter(prometheus.CounterOpts{
			Namespace: "showgo",
			Name:      "player_tracks_advanced_total",
			Help:      "Automatic advances to the next track.",
		}),
	}
}
