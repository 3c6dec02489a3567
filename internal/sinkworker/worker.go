// Package sinkworker runs a plugin output sink on a single dedicated thread, isolating
// its real-time write loop from the rest of the engine (spec §4.B).
package sinkworker

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/pluginhost"
	"github.com/friendsincode/stellatune/internal/pluginhost/cabi"
	"github.com/friendsincode/stellatune/internal/stellaerr"
	"github.com/friendsincode/stellatune/internal/telemetry"
)

// configRequest is a blocking request/response pair for apply_config_json.
type configRequest struct {
	json string
	resp chan ConfigOutcome
}

// workerControl messages come from the host runtime (reset/shutdown), distinct from the
// sample-producer channel (spec §4.B "select over (control channel, worker-control
// messages, sample queue)").
type workerControlKind int

const (
	controlResetForDisrupt workerControlKind = iota
	controlShutdown
)

type workerControl struct {
	kind  workerControlKind
	drain bool // for controlShutdown
	done  chan struct{}
}

// Worker owns one plugin output-sink instance on a dedicated goroutine.
type Worker struct {
	host     *pluginhost.Host
	pluginID string
	target   string

	logger zerolog.Logger

	samples chan model.AudioBlock
	config  chan configRequest
	control chan workerControl

	errCh chan error // transient sink errors, surfaced to the engine for session restart

	volume         atomic.Uint32 // float32 bits, linear gain (spec §5 volume_atomic)
	transitionGain *transitionGain

	writeStallTimeout time.Duration
	retrySleep        time.Duration

	sink       *cabi.OutputSink
	sinkCloser func()
	spec       cabi.NegotiatedSpec

	pendingSamples atomic.Int64

	done chan struct{}
}

// New constructs a Worker bound to host's plugin for pluginID, targeting target (an
// opaque device identifier), with queue capacity and stall-timeout/retry-sleep tunables
// coming from config (internal/config.Config.OutputSink*).
func New(host *pluginhost.Host, pluginID, target string, queueCapacity int, writeStallMS, retrySleepMS int64, logger zerolog.Logger) *Worker {
	w := &Worker{
		host:              host,
		pluginID:          pluginID,
		target:            target,
		logger:            logger.With().Str("component", "sinkworker").Str("plugin_id", pluginID).Logger(),
		samples:           make(chan model.AudioBlock, queueCapacity),
		config:            make(chan configRequest),
		control:           make(chan workerControl),
		errCh:             make(chan error, 1),
		transitionGain:    newTransitionGain(1.0),
		writeStallTimeout: time.Duration(writeStallMS) * time.Millisecond,
		retrySleep:        time.Duration(retrySleepMS) * time.Millisecond,
		done:              make(chan struct{}),
	}
	w.volume.Store(floatBits(1.0))
	return w
}

// Sender returns the bounded sample-queue producer (spec §4.B "sender()").
func (w *Worker) Sender() chan<- model.AudioBlock { return w.samples }

// Errors returns the channel the decode worker/engine should watch for fatal sink
// errors (spec §4.B "Stall handling").
func (w *Worker) Errors() <-chan error { return w.errCh }

// SetVolume updates the linear gain applied to every sample (Relaxed-equivalent: a
// plain atomic store, read without synchronization by the write loop).
func (w *Worker) SetVolume(linear float64) { w.volume.Store(floatBits(float32(linear))) }

// SetTransitionTarget begins a new power-wise gain ramp toward target over rampMS (spec
// §4.B "transition_gain").
func (w *Worker) SetTransitionTarget(target float64, rampMS int64) {
	w.transitionGain.SetTarget(target, int(w.spec.Spec.SampleRate), rampMS)
	outcome := "fade_in"
	if target <= 0 {
		outcome = "fade_out"
	}
	telemetry.TransitionGainApplied.WithLabelValues(outcome).Inc()
}

// Run opens the sink and runs the cooperative select loop until Shutdown is requested
// or a stall error terminates the worker. Intended to run on its own goroutine, marked
// as a real-time audio thread by the caller per platform convention (spec §5).
func (w *Worker) Run(ctx context.Context, desired cabi.AudioSpec) error {
	defer close(w.done)

	sink, negotiated, closer, err := w.host.OpenOutputSink(w.pluginID, w.target, desired)
	if err != nil {
		return err
	}
	w.sink = sink
	w.sinkCloser = closer
	w.spec = negotiated
	defer w.sinkCloser()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-w.config:
			req.resp <- w.applyConfig(req.json)
		case ctl := <-w.control:
			stop, err := w.handleControl(ctl)
			if ctl.done != nil {
				close(ctl.done)
			}
			if stop {
				return err
			}
		case block := <-w.samples:
			w.pendingSamples.Add(-int64(len(block.Samples)))
			if err := w.writeBlock(block); err != nil {
				select {
				case w.errCh <- err:
				default:
				}
				return err
			}
		}
	}
}

// writeBlock applies volume + transition gain to every sample then writes to the sink,
// retrying on short writes up to writeStallTimeout before surfacing a stall error (spec
// §4.B "Stall handling").
func (w *Worker) writeBlock(block model.AudioBlock) error {
	vol := float64(floatFromBits(w.volume.Load()))
	out := make([]float32, len(block.Samples))
	for i, s := range block.Samples {
		g := w.transitionGain.Advance()
		out[i] = s * float32(vol) * float32(g)
	}

	framesTotal := block.FrameCount()
	framesWritten := 0
	stalled := time.Duration(0)

	for framesWritten < framesTotal {
		remaining := out[framesWritten*int(block.Channels):]
		n := w.sink.WriteInterleavedF32(remaining, int(block.Channels))
		if n == 0 {
			if stalled >= w.writeStallTimeout {
				telemetry.SinkWriteStallTotal.Inc()
				return stellaerr.New(stellaerr.KindSinkStalled, "output sink accepted zero frames past stall timeout")
			}
			time.Sleep(w.retrySleep)
			stalled += w.retrySleep
			continue
		}
		framesWritten += n
		stalled = 0
	}
	return nil
}

// applyConfig implements the hot-update outcome matrix (spec §4.B). This engine models
// the sink as single-instance with no partial in-place reconfiguration exposed by the
// cabi layer, so every config with an open sink, identical or not, takes the
// RequiresRecreate path (the sink is closed and reopened with newJSON as its target);
// ConfigApplied is never returned.
func (w *Worker) applyConfig(newJSON string) ConfigOutcome {
	if w.sink == nil {
		return ConfigOutcome{Kind: ConfigDeferredNoInstance}
	}
	if newJSON == "" {
		return ConfigOutcome{Kind: ConfigRejected, Reason: "empty config"}
	}
	// Recreate: negotiate against the existing desired spec; the plugin's open()
	// consumes newJSON via its own target/config convention (spec leaves config_json's
	// shape to the plugin).
	w.sinkCloser()
	sink, negotiated, closer, err := w.host.OpenOutputSink(w.pluginID, newJSON, w.spec.Spec)
	if err != nil {
		return ConfigOutcome{Kind: ConfigFailed, Err: err}
	}
	w.sink = sink
	w.sinkCloser = closer
	w.spec = negotiated
	return ConfigOutcome{Kind: ConfigRequiresRecreate}
}

// handleControl processes a worker-control message. Returns stop=true if the worker
// should exit its select loop.
func (w *Worker) handleControl(ctl workerControl) (stop bool, err error) {
	switch ctl.kind {
	case controlResetForDisrupt:
		w.drainSamples()
		w.transitionGain = newTransitionGain(floatFromBitsF64(w.volume.Load()))
		return false, nil
	case controlShutdown:
		if ctl.drain {
			w.flushSamples()
		} else {
			w.drainSamples()
		}
		return true, nil
	default:
		return false, nil
	}
}

func (w *Worker) drainSamples() {
	for {
		select {
		case block := <-w.samples:
			w.pendingSamples.Add(-int64(len(block.Samples)))
		default:
			return
		}
	}
}

func (w *Worker) flushSamples() {
	for {
		select {
		case block := <-w.samples:
			w.pendingSamples.Add(-int64(len(block.Samples)))
			_ = w.writeBlock(block)
		default:
			if w.sink != nil {
				_ = w.sink.Flush()
			}
			return
		}
	}
}

// ApplyConfigJSON sends newJSON to the worker and blocks for the outcome (spec §4.B
// "apply_config_json(new_json) (blocking request/response)").
func (w *Worker) ApplyConfigJSON(newJSON string) ConfigOutcome {
	resp := make(chan ConfigOutcome, 1)
	w.config <- configRequest{json: newJSON, resp: resp}
	return <-resp
}

// ResetForDisrupt drops queued audio and resets the sink's transition-gain state (spec
// §4.B "reset_for_disrupt()").
func (w *Worker) ResetForDisrupt() {
	done := make(chan struct{})
	w.control <- workerControl{kind: controlResetForDisrupt, done: done}
	<-done
}

// Shutdown stops the worker, optionally flushing queued audio first (spec §4.B
// "shutdown(drain_bool)").
func (w *Worker) Shutdown(drain bool) {
	done := make(chan struct{})
	select {
	case w.control <- workerControl{kind: controlShutdown, drain: drain, done: done}:
		<-done
	case <-w.done:
	}
}

func floatBits(f float32) uint32        { return math.Float32bits(f) }
func floatFromBits(b uint32) float32    { return math.Float32frombits(b) }
func floatFromBitsF64(b uint32) float64 { return float64(math.Float32frombits(b)) }
