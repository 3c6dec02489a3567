package pipeline

import (
	"math"

	"github.com/friendsincode/stellatune/internal/model"
)

// GaplessTrimmer drops head_frames worth of leading audio and withholds the final
// tail_frames worth of trailing audio so it is never flushed to the sink (spec §3
// GaplessTrimSpec, §4.D step 1: "Subtract gapless_trim_spec().tail_frames if present").
// Tail-trimming needs a small lookahead buffer: frames are only released once enough
// later audio has arrived to prove they aren't the withheld tail.
type GaplessTrimmer struct {
	channels int
	headDrop uint64
	tailHold uint64
	pending  []float32
}

// NewGaplessTrimmer returns a trimmer for channels-wide interleaved audio. A nil spec
// trims nothing.
func NewGaplessTrimmer(spec *model.GaplessTrimSpec, channels int) *GaplessTrimmer {
	t := &GaplessTrimmer{channels: channels}
	if spec != nil {
		t.headDrop = spec.HeadFrames
		t.tailHold = spec.TailFrames
	}
	return t
}

// Process consumes block and returns the portion of it (if any) now known not to be
// part of the withheld head/tail. The final tail_frames of the stream are never
// returned by any call, since Process is never told a given call is the last one.
func (t *GaplessTrimmer) Process(block model.AudioBlock) model.AudioBlock {
	if t.channels == 0 || len(block.Samples) == 0 {
		return block
	}

	samples := block.Samples
	if t.headDrop > 0 {
		available := uint64(len(samples) / t.channels)
		drop := t.headDrop
		if drop > available {
			drop = available
		}
		samples = samples[drop*uint64(t.channels):]
		t.headDrop -= drop
	}

	combined := append(t.pending, samples...)
	frames := uint64(len(combined) / t.channels)
	if frames <= t.tailHold {
		t.pending = combined
		return model.AudioBlock{Channels: block.Channels}
	}

	emitFrames := frames - t.tailHold
	emitLen := emitFrames * uint64(t.channels)
	out := make([]float32, emitLen)
	copy(out, combined[:emitLen])
	t.pending = append([]float32{}, combined[emitLen:]...)
	return model.AudioBlock{Channels: block.Channels, Samples: out}
}

// ApplyMixer maps block's channel count to stage.Channels: downmixing by averaging all
// source channels into each target channel, upmixing by repeating the last available
// source channel (spec §4.C "optional MixerStage").
func ApplyMixer(stage MixerStage, block model.AudioBlock) model.AudioBlock {
	target := int(stage.Channels)
	src := int(block.Channels)
	if target == 0 || src == 0 || target == src || len(block.Samples) == 0 {
		return block
	}

	frames := len(block.Samples) / src
	out := make([]float32, frames*target)
	for f := 0; f < frames; f++ {
		if target < src {
			var sum float32
			for c := 0; c < src; c++ {
				sum += block.Samples[f*src+c]
			}
			avg := sum / float32(src)
			for c := 0; c < target; c++ {
				out[f*target+c] = avg
			}
			continue
		}
		for c := 0; c < target; c++ {
			srcCh := c
			if srcCh >= src {
				srcCh = src - 1
			}
			out[f*target+c] = block.Samples[f*src+srcCh]
		}
	}
	return model.AudioBlock{Channels: uint16(target), Samples: out}
}

// LinearResampler converts channels-wide interleaved audio from sourceRate to
// stage.TargetSampleRate by linear interpolation, carrying fractional phase and the
// previous block's final frame across calls so the output stays continuous at block
// boundaries (spec §4.C "optional ResamplerStage").
type LinearResampler struct {
	ratio    float64 // sourceRate / targetRate
	channels int
	pos      float64 // fractional frame offset into the current block's own frames
	lastFrame []float32
	active   bool
}

// NewLinearResampler returns a resampler for stage at sourceRate. If sourceRate equals
// stage.TargetSampleRate (or either is zero), Process is a no-op passthrough.
func NewLinearResampler(stage ResamplerStage, sourceRate uint32, channels int) *LinearResampler {
	r := &LinearResampler{channels: channels}
	if sourceRate == 0 || stage.TargetSampleRate == 0 || sourceRate == stage.TargetSampleRate {
		return r
	}
	r.ratio = float64(sourceRate) / float64(stage.TargetSampleRate)
	r.active = true
	return r
}

// Process resamples block into a new block, returning as many output frames as the available
// input (plus carried phase/lastFrame state) supports.
func (r *LinearResampler) Process(block model.AudioBlock) model.AudioBlock {
	if !r.active || r.channels == 0 || len(block.Samples) == 0 {
		return block
	}

	ch := r.channels
	frames := len(block.Samples) / ch
	var out []float32

	pos := r.pos
resample:
	for pos < float64(frames) {
		idx := int(math.Floor(pos))
		frac := pos - float64(idx)

		var a, b []float32
		if idx < 0 {
			if r.lastFrame == nil {
				pos += r.ratio
				continue
			}
			a = r.lastFrame
			b = block.Samples[0:ch]
		} else if idx+1 < frames {
			a = block.Samples[idx*ch : (idx+1)*ch]
			b = block.Samples[(idx+1)*ch : (idx+2)*ch]
		} else {
			// Not enough lookahead left in this block; carry the remainder forward.
			break resample
		}

		for c := 0; c < ch; c++ {
			out = append(out, a[c]+float32(frac)*(b[c]-a[c]))
		}
		pos += r.ratio
	}

	r.pos = pos - float64(frames)
	r.lastFrame = append([]float32{}, block.Samples[(frames-1)*ch:frames*ch]...)

	return model.AudioBlock{Channels: block.Channels, Samples: out}
}

// GainRamp implements the same power-wise interpolation the sink worker's
// transition-gain stage uses (spec §4.B math, reused here for the decode-side
// master_gain built-in stage — spec §4.D "Master-gain hot control"): interpolate
// between from^2 and to^2 over ramp_ms, then take the square root.
type GainRamp struct {
	from, to, progress, step float64
}

// NewGainRamp returns a ramp already settled at initial.
func NewGainRamp(initial float64) *GainRamp {
	return &GainRamp{from: initial, to: initial, progress: 1}
}

// SetTarget begins a new ramp toward to over rampMS at sampleRate, resetting
// from<-current value and progress<-0.
func (g *GainRamp) SetTarget(to float64, sampleRate int, rampMS int64) {
	g.from = g.Value()
	g.to = to
	g.progress = 0

	totalSteps := float64(sampleRate) * float64(rampMS) / 1000.0
	if totalSteps < 1 {
		totalSteps = 1
	}
	g.step = 1.0 / totalSteps
}

// Value returns the current interpolated linear gain without advancing the ramp.
func (g *GainRamp) Value() float64 {
	p := g.progress
	if p > 1 {
		p = 1
	}
	fromSq := g.from * g.from
	toSq := g.to * g.to
	v := fromSq + (toSq-fromSq)*p
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

// Advance returns the gain for the next sample and steps the ramp forward.
func (g *GainRamp) Advance() float64 {
	v := g.Value()
	if g.progress < 1 {
		g.progress += g.step
		if g.progress > 1 {
			g.progress = 1
		}
	}
	return v
}

// ApplyGain multiplies every sample in block by ramp's per-sample gain, in place,
// matching the sink worker's per-raw-sample application style (spec §4.B "Before
// writing to the sink, every sample is multiplied by ... transition_gain").
func ApplyGain(block model.AudioBlock, ramp *GainRamp) model.AudioBlock {
	if ramp == nil {
		return block
	}
	for i, s := range block.Samples {
		block.Samples[i] = s * float32(ramp.Advance())
	}
	return block
}
