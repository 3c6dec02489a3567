package sinkworker

import "math"

// transitionGain implements the power-wise crossfade interpolation from spec §4.B:
// interpolate between from^2 and to^2 linearly over ramp_ms, then take the square
// root, stepping by 1/(sample_rate*ramp_ms/1000) per sample (minimum step 1/1 i.e. one
// full step, never a divide-by-zero ramp).
type transitionGain struct {
	from     float64
	to       float64
	progress float64 // 0..1
	step     float64
}

func newTransitionGain(initial float64) *transitionGain {
	return &transitionGain{from: initial, to: initial, progress: 1}
}

// SetTarget resets the ramp toward to over rampMS at sampleRate. Per spec: "When the
// target atomic changes, the interpolation resets from ← current, progress ← 0."
func (g *transitionGain) SetTarget(to float64, sampleRate int, rampMS int64) {
	current := g.Value()
	g.from = current
	g.to = to
	g.progress = 0

	totalSteps := float64(sampleRate) * float64(rampMS) / 1000.0
	if totalSteps < 1 {
		totalSteps = 1
	}
	g.step = 1.0 / totalSteps
}

// Value returns the current interpolated linear gain.
func (g *transitionGain) Value() float64 {
	p := g.progress
	if p > 1 {
		p = 1
	}
	fromSq := g.from * g.from
	toSq := g.to * g.to
	interpolatedSq := fromSq + (toSq-fromSq)*p
	if interpolatedSq < 0 {
		interpolatedSq = 0
	}
	return math.Sqrt(interpolatedSq)
}

// Advance steps the ramp forward by one sample and returns the gain to apply to that
// sample.
func (g *transitionGain) Advance() float64 {
	v := g.Value()
	if g.progress < 1 {
		g.progress += g.step
		if g.progress > 1-1e-9 {
			g.progress = 1
		}
	}
	return v
}

// Done reports whether the ramp has reached its target.
func (g *transitionGain) Done() bool { return g.progress >= 1 }
