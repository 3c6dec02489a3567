// Package engine implements the single-threaded coordinator that owns at most one
// Session: it selects over an external-command channel, an event-hub subscription fed
// by the decode/sink workers, and a periodic tick (spec §4.E).
package engine

import (
	"sync/atomic"

	"github.com/friendsincode/stellatune/internal/decodeworker"
	"github.com/friendsincode/stellatune/internal/model"
	"github.com/friendsincode/stellatune/internal/sinkworker"
)

// Session is the active playback instance: the decode thread's control channel, the
// sink worker, and the shared atomics a sink callback and the engine tick both touch
// without going through a channel (spec §3 "Session").
type Session struct {
	ID string

	Decode *decodeworker.Worker
	Sink   *sinkworker.Worker

	OutputEnabled     atomic.Bool
	BufferedSamples   atomic.Int64
	UnderrunCallbacks atomic.Int64
	VolumeLinear      atomic.Uint32 // math.Float32bits(linear gain)

	Spec model.StreamSpec

	stopped chan struct{}
}

func newSession(id string, dec *decodeworker.Worker, sink *sinkworker.Worker, spec model.StreamSpec) *Session {
	s := &Session{ID: id, Decode: dec, Sink: sink, Spec: spec, stopped: make(chan struct{})}
	return s
}

// MarkStopped closes the session's stopped channel exactly once.
func (s *Session) MarkStopped() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}

// Stopped reports whether MarkStopped has been called.
func (s *Session) Stopped() <-chan struct{} { return s.stopped }

// BufferedMS reports buffered_samples converted to milliseconds for the session's
// negotiated spec (spec §8 invariant: "buffered_ms ... never goes negative").
func (s *Session) BufferedMS() float64 {
	return model.BufferedMS(s.BufferedSamples.Load(), s.Spec)
}
