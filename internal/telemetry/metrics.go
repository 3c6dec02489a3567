// Package telemetry exposes the engine's Prometheus metrics: buffering state, sink
// health, and plugin-host activity (spec §5 shared-resource counters made observable).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PlayerState mirrors model.PlayerState as a gauge: 0 Stopped, 1 Buffering,
	// 2 Paused, 3 Playing (spec §3 PlayerState).
	PlayerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stellatune",
		Subsystem: "engine",
		Name:      "player_state",
		Help:      "Current PlayerState: 0=Stopped 1=Buffering 2=Paused 3=Playing.",
	})

	BufferedMilliseconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stellatune",
		Subsystem: "engine",
		Name:      "buffered_ms",
		Help:      "Buffered audio in the active session, in milliseconds.",
	})

	UnderrunTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stellatune",
		Subsystem: "sink",
		Name:      "underrun_callbacks_total",
		Help:      "Count of sink underrun callbacks observed.",
	})

	SinkWriteStallTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stellatune",
		Subsystem: "sink",
		Name:      "write_stall_total",
		Help:      "Count of write_interleaved_f32 calls that stalled past the retry budget.",
	})

	PluginGenerationsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stellatune",
		Subsystem: "pluginhost",
		Name:      "generations_active",
		Help:      "Active plugin generations per plugin id.",
	}, []string{"plugin_id"})

	PluginCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stellatune",
		Subsystem: "pluginhost",
		Name:      "call_errors_total",
		Help:      "Plugin call failures by operation.",
	}, []string{"operation"})

	TransitionGainApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stellatune",
		Subsystem: "sink",
		Name:      "transition_gain_events_total",
		Help:      "Transition-gain retarget events by outcome (fade_out, fade_in).",
	}, []string{"outcome"})
)

// Handler exposes the metrics endpoint for STELLATUNE_METRICS_BIND.
func Handler() http.Handler {
	return promhttp.Handler()
}
