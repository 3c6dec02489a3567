package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
)

func TestSessionBufferedMSConvertsSamplesForNegotiatedSpec(t *testing.T) {
	s := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})
	s.BufferedSamples.Store(4410 * 2) // 4410 frames/channel == 100ms at 44100Hz

	require.InDelta(t, 100.0, s.BufferedMS(), 0.001)
}

func TestSessionBufferedMSNeverNegative(t *testing.T) {
	s := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})
	s.BufferedSamples.Store(-10)

	require.Equal(t, 0.0, s.BufferedMS())
}

func TestSessionMarkStoppedIsIdempotent(t *testing.T) {
	s := newSession("sess-1", nil, nil, model.StreamSpec{SampleRate: 44100, Channels: 2})

	require.NotPanics(t, func() {
		s.MarkStopped()
		s.MarkStopped()
	})

	select {
	case <-s.Stopped():
	default:
		t.Fatal("expected stopped channel to be closed")
	}
}
