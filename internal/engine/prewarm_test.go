package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
)

type fakeQuerier struct {
	spec  model.StreamSpec
	err   error
	calls int
}

func (f *fakeQuerier) QueryNativeSpec(backend, deviceID string) (model.StreamSpec, error) {
	f.calls++
	return f.spec, f.err
}

func TestPrewarmerBeginDeliversResolvedSpec(t *testing.T) {
	q := &fakeQuerier{spec: model.StreamSpec{SampleRate: 48000, Channels: 2}}
	p := NewPrewarmer(q)

	tok, results := p.Begin("coreaudio", "default")
	select {
	case res := <-results:
		require.Equal(t, tok, res.Token)
		require.False(t, p.IsStale(res))
		require.Equal(t, uint32(48000), res.Spec.SampleRate)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for prewarm result")
	}
}

func TestPrewarmerBeginMarksSupersededTokenStale(t *testing.T) {
	q := &fakeQuerier{spec: model.StreamSpec{SampleRate: 44100, Channels: 2}}
	p := NewPrewarmer(q)

	firstTok, firstResults := p.Begin("coreaudio", "device-a")
	_, secondResults := p.Begin("coreaudio", "device-b")

	var first, second PrewarmResult
	select {
	case first = <-firstResults:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first prewarm result")
	}
	select {
	case second = <-secondResults:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second prewarm result")
	}

	require.Equal(t, firstTok, first.Token)
	require.True(t, p.IsStale(first), "first request's token is behind the current one")
	require.False(t, p.IsStale(second))
	require.Equal(t, p.CurrentToken(), second.Token)
}

func TestPrewarmerPropagatesQueryError(t *testing.T) {
	boom := errors.New("device unavailable")
	q := &fakeQuerier{err: boom}
	p := NewPrewarmer(q)

	_, results := p.Begin("coreaudio", "missing")
	select {
	case res := <-results:
		require.ErrorIs(t, res.Err, boom)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for prewarm result")
	}
}
