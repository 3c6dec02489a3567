package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/friendsincode/stellatune/internal/model"
)

func TestGaplessTrimmerDropsHeadFramesAcrossBlockBoundary(t *testing.T) {
	spec := &model.GaplessTrimSpec{HeadFrames: 3}
	trimmer := NewGaplessTrimmer(spec, 1)

	// First block: 2 frames, both dropped, nothing emitted yet.
	out := trimmer.Process(model.AudioBlock{Channels: 1, Samples: []float32{1, 2}})
	require.Empty(t, out.Samples)

	// Second block: 1 more head frame dropped, remaining 2 frames emitted.
	out = trimmer.Process(model.AudioBlock{Channels: 1, Samples: []float32{3, 4, 5}})
	require.Equal(t, []float32{4, 5}, out.Samples)
}

func TestGaplessTrimmerWithholdsTailFramesUntilMoreDataArrives(t *testing.T) {
	trimmer := NewGaplessTrimmer(&model.GaplessTrimSpec{TailFrames: 2}, 1)

	out := trimmer.Process(model.AudioBlock{Channels: 1, Samples: []float32{1, 2, 3}})
	// Only 1 frame known not to be part of the withheld tail.
	require.Equal(t, []float32{1}, out.Samples)

	out = trimmer.Process(model.AudioBlock{Channels: 1, Samples: []float32{4}})
	require.Equal(t, []float32{2}, out.Samples)

	// The final 2 frames (3, 4) are never released — this is the gapless tail trim.
}

func TestGaplessTrimmerNilSpecPassesThrough(t *testing.T) {
	trimmer := NewGaplessTrimmer(nil, 2)
	block := model.AudioBlock{Channels: 2, Samples: []float32{1, 2, 3, 4}}
	out := trimmer.Process(block)
	require.Equal(t, block.Samples, out.Samples)
}

func TestApplyMixerDownmixesByAveraging(t *testing.T) {
	block := model.AudioBlock{Channels: 2, Samples: []float32{1, 3, 2, 4}} // 2 frames, L/R
	out := ApplyMixer(MixerStage{Channels: 1}, block)
	require.Equal(t, []float32{2, 3}, out.Samples)
	require.Equal(t, uint16(1), out.Channels)
}

func TestApplyMixerUpmixesByRepeatingLastChannel(t *testing.T) {
	block := model.AudioBlock{Channels: 1, Samples: []float32{1, 2}}
	out := ApplyMixer(MixerStage{Channels: 2}, block)
	require.Equal(t, []float32{1, 1, 2, 2}, out.Samples)
}

func TestApplyMixerNoOpWhenChannelsMatch(t *testing.T) {
	block := model.AudioBlock{Channels: 2, Samples: []float32{1, 2, 3, 4}}
	out := ApplyMixer(MixerStage{Channels: 2}, block)
	require.Equal(t, block.Samples, out.Samples)
}

func TestLinearResamplerPassthroughWhenRatesMatch(t *testing.T) {
	r := NewLinearResampler(ResamplerStage{TargetSampleRate: 44100}, 44100, 1)
	block := model.AudioBlock{Channels: 1, Samples: []float32{1, 2, 3}}
	out := r.Process(block)
	require.Equal(t, block.Samples, out.Samples)
}

func TestLinearResamplerUpsamplesDoublingFrameCount(t *testing.T) {
	r := NewLinearResampler(ResamplerStage{TargetSampleRate: 8}, 4, 1)
	out := r.Process(model.AudioBlock{Channels: 1, Samples: []float32{0, 2, 4, 6}})
	require.NotEmpty(t, out.Samples)
	// Upsampling 4 source frames at half the ratio should yield roughly double the frames.
	require.Greater(t, len(out.Samples), 4)
}

func TestLinearResamplerCarriesPhaseAcrossBlocks(t *testing.T) {
	r := NewLinearResampler(ResamplerStage{TargetSampleRate: 3}, 4, 1)
	first := r.Process(model.AudioBlock{Channels: 1, Samples: []float32{0, 4, 8, 12}})
	second := r.Process(model.AudioBlock{Channels: 1, Samples: []float32{16, 20, 24, 28}})
	require.NotEmpty(t, first.Samples)
	require.NotEmpty(t, second.Samples)
}

func TestGainRampSettlesAtTargetAfterEnoughAdvances(t *testing.T) {
	r := NewGainRamp(1.0)
	r.SetTarget(0.0, 100, 10) // 1 sample ramp at 100Hz/10ms == 1 step
	g1 := r.Advance()
	require.InDelta(t, 1.0, g1, 1e-9)
	g2 := r.Advance()
	require.InDelta(t, 0.0, g2, 1e-9)
}

func TestApplyGainMultipliesEverySampleBySettledRamp(t *testing.T) {
	r := NewGainRamp(0.5) // already settled at 0.5, no pending ramp
	block := model.AudioBlock{Channels: 1, Samples: []float32{2, 4, 6}}
	out := ApplyGain(block, r)
	require.Equal(t, []float32{1, 2, 3}, out.Samples)
}

func TestApplyGainNilRampIsNoOp(t *testing.T) {
	block := model.AudioBlock{Channels: 1, Samples: []float32{2, 4, 6}}
	out := ApplyGain(block, nil)
	require.Equal(t, block.Samples, out.Samples)
}
