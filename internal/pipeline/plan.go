package pipeline

import "github.com/friendsincode/stellatune/internal/model"

// SourceStage names the input reference (wire-form track token) the decoder stage
// consumes (spec §3 "TrackToken"). It holds only the reference; opening the stream is
// left to the decoder path.
type SourceStage struct {
	InputRef string
}

// DecoderStage names the chosen decoder candidate (spec §4.A decoder selection).
type DecoderStage struct {
	PluginID string
	TypeID   string
}

// MixerStage and ResamplerStage are optional terminal-adjacent stages (spec §4.C stage
// taxonomy). A nil Resampler means no sample-rate conversion is applied.
type MixerStage struct {
	Channels uint16
}

type ResamplerStage struct {
	TargetSampleRate uint32
	Quality          string
}

// SinkStage names the terminal plugin output-sink target (spec §4.B).
type SinkStage struct {
	PluginID string
	Target   string
}

// PipelinePlan is the complete, declarative description `PipelineAssembler.ensure`
// builds or reuses a runtime from (spec §4.C).
type PipelinePlan struct {
	Source    SourceStage
	Decoder   DecoderStage
	Transform *TransformGraph
	Mixer     *MixerStage
	Resampler *ResamplerStage
	Sink      SinkStage
}

// NewPlan builds a plan with the default transform graph (spec's built-in slots) for
// the given source/decoder/sink triple.
func NewPlan(source SourceStage, decoder DecoderStage, sink SinkStage) PipelinePlan {
	return PipelinePlan{
		Source:    source,
		Decoder:   decoder,
		Transform: DefaultGraph(),
		Sink:      sink,
	}
}

// EffectiveSampleRateScale returns resampler.target_sample_rate / decoder_sample_rate,
// or 1.0 when no resampler is present — used by the decode worker to scale the
// decoder's remaining-frames hint for near-EOF fade-outs (spec §4.D step 2).
func (p PipelinePlan) EffectiveSampleRateScale(decoderSampleRate uint32) float64 {
	if p.Resampler == nil || decoderSampleRate == 0 {
		return 1.0
	}
	return float64(p.Resampler.TargetSampleRate) / float64(decoderSampleRate)
}

// AvailableFramesHint applies the two-step transformation from spec §4.D:
// 1. subtract gapless_trim tail_frames if present
// 2. scale by resampler.target_sample_rate / decoder.sample_rate when present
func (p PipelinePlan) AvailableFramesHint(estimatedRemaining uint64, trim *model.GaplessTrimSpec, decoderSampleRate uint32) uint64 {
	remaining := estimatedRemaining
	if trim != nil && trim.TailFrames < remaining {
		remaining -= trim.TailFrames
	} else if trim != nil {
		remaining = 0
	}
	scale := p.EffectiveSampleRateScale(decoderSampleRate)
	return uint64(float64(remaining) * scale)
}
