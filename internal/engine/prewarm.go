package engine

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/friendsincode/stellatune/internal/model"
)

// OutputSpecQuerier asks the OS for a device's native stream spec. Implementations
// live outside this package (platform audio backend); Prewarmer only owns the
// off-path query/token/dedup machinery (spec §4.E "Output-spec prewarm").
type OutputSpecQuerier interface {
	QueryNativeSpec(backend, deviceID string) (model.StreamSpec, error)
}

// PrewarmResult is delivered on the channel Begin returns. A result whose Token is behind Prewarmer's current token is stale and must be
// discarded without acting on it (spec §4.E: "stamp with a monotonically increasing
// token so stale replies are discarded when the device changes").
type PrewarmResult struct {
	Token    uint64
	Backend  string
	DeviceID string
	Spec     model.StreamSpec
	Err      error
}

// Prewarmer runs the one-shot output-spec query off the engine's control thread.
// Concurrent requests for the same (backend, device_id) share a single in-flight
// query via singleflight, matching SPEC_FULL.md's dedup requirement for prewarm and
// preload; each caller still gets its own token so a superseded request's result is
// still discardable independently of whether it shared the underlying query.
type Prewarmer struct {
	querier OutputSpecQuerier
	group   singleflight.Group
	token   atomic.Uint64
}

// NewPrewarmer returns a Prewarmer that uses querier to resolve native device specs.
func NewPrewarmer(querier OutputSpecQuerier) *Prewarmer {
	return &Prewarmer{querier: querier}
}

// Begin issues a new token and spawns the one-shot query, returning a channel the
// caller should read exactly once. The channel is buffered so the spawned goroutine
// never blocks on a caller that stopped listening.
func (p *Prewarmer) Begin(backend, deviceID string) (token uint64, results <-chan PrewarmResult) {
	tok := p.token.Add(1)
	out := make(chan PrewarmResult, 1)

	go func() {
		key := backend + "\x00" + deviceID
		v, err, _ := p.group.Do(key, func() (interface{}, error) {
			return p.querier.QueryNativeSpec(backend, deviceID)
		})
		res := PrewarmResult{Token: tok, Backend: backend, DeviceID: deviceID, Err: err}
		if err == nil {
			res.Spec = v.(model.StreamSpec)
		}
		out <- res
	}()

	return tok, out
}

// CurrentToken returns the most recently issued token, used by the engine loop to
// decide whether an inbound PrewarmResult is still relevant.
func (p *Prewarmer) CurrentToken() uint64 { return p.token.Load() }

// IsStale reports whether res is behind the most recently issued token.
func (p *Prewarmer) IsStale(res PrewarmResult) bool { return res.Token != p.token.Load() }
