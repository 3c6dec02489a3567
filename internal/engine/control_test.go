package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/eventhub"
	"github.com/friendsincode/stellatune/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	hub := eventhub.New(8)
	e := New(nil, nil, hub, NewPrewarmer(&fakeQuerier{}), NewPreloader(nil), nil, Config{
		ExclusiveWatermarks: ExclusiveWatermarks(2000, 500),
		SharedWatermarks:    SharedWatermarks(2000, 500),
		TickEvery:           time.Hour, // test drives tick() directly, not via the ticker
	}, zerolog.Nop())
	return e
}

func TestEngineForwardIsNoOpWithoutAnActiveSession(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()
	defer func() {
		require.NoError(t, e.Submit(ExternalCommand{Kind: ExtShutdown}))
	}()

	require.NoError(t, e.Submit(ExternalCommand{Kind: ExtPause}))
	require.NoError(t, e.Submit(ExternalCommand{Kind: ExtSeek, PositionMS: 1000}))
}

func TestEngineShutdownStopsTheRunLoop(t *testing.T) {
	e := newTestEngine(t)
	go e.Run()

	require.NoError(t, e.Submit(ExternalCommand{Kind: ExtShutdown}))

	select {
	case <-e.Stopped():
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after ExtShutdown")
	}
}

func TestHandleSetOutputOptionsDebouncesUntilNextTick(t *testing.T) {
	e := newTestEngine(t)
	sess := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})
	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()

	require.NoError(t, e.handleSetOutputOptions(OutputOptions{Backend: "a", DeviceID: "1"}))
	// A second switch before any tick collapses into the same pending restart rather
	// than tearing the session down twice.
	require.NoError(t, e.handleSetOutputOptions(OutputOptions{Backend: "a", DeviceID: "2"}))

	e.mu.Lock()
	stillSameSession := e.session == sess
	pending := e.pendingRestart
	e.mu.Unlock()
	require.True(t, stillSameSession, "handleSetOutputOptions must not tear the session down inline")
	require.True(t, pending)

	e.tick()

	e.mu.Lock()
	pendingAfterTick := e.pendingRestart
	sessionAfterTick := e.session
	e.mu.Unlock()
	require.False(t, pendingAfterTick)
	require.Nil(t, sessionAfterTick, "the debounced restart tears the old session down on the next tick")
}

func TestHandleSetOutputOptionsUnchangedOptionsDoNotSchedulesRestart(t *testing.T) {
	e := newTestEngine(t)
	sess := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})
	e.mu.Lock()
	e.session = sess
	e.options = OutputOptions{Backend: "a", DeviceID: "1"}
	e.mu.Unlock()

	require.NoError(t, e.handleSetOutputOptions(OutputOptions{Backend: "a", DeviceID: "1"}))

	e.mu.Lock()
	pending := e.pendingRestart
	e.mu.Unlock()
	require.False(t, pending)
}

func TestEngineTickIsNoOpWithoutAnActiveSession(t *testing.T) {
	e := newTestEngine(t)
	require.NotPanics(t, func() { e.tick() })
}

func TestEngineTickPublishesStateChangedOnWatermarkCrossing(t *testing.T) {
	e := newTestEngine(t)
	sub := e.hub.Subscribe()
	defer e.hub.Unsubscribe(sub)

	sess := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})
	sess.OutputEnabled.Store(false)
	sess.BufferedSamples.Store(int64(2205 * 2)) // 2205 frames/channel == 50ms, below the 500ms low watermark

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()

	e.tick()
	require.False(t, sess.OutputEnabled.Load(), "below low watermark stays disabled, no state change to publish")

	sess.BufferedSamples.Store(int64(44100 * 2)) // 44100 frames/channel == 1000ms, below high watermark but nonzero
	e.tick()

	select {
	case ev := <-sub:
		t.Fatalf("unexpected event published while still below the high watermark: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	sess.BufferedSamples.Store(int64(88200 * 2)) // 2000ms, at the high watermark
	e.tick()

	select {
	case ev := <-sub:
		require.Equal(t, eventhub.KindStateChanged, ev.Kind)
		require.Equal(t, model.StatePlaying.String(), ev.State)
	case <-time.After(time.Second):
		t.Fatal("expected a state_changed event once the high watermark is reached")
	}
	require.True(t, sess.OutputEnabled.Load())
}
