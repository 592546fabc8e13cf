package convert

import "math"

// resampler converts interleaved float32 frames from one sample rate to
// another, retaining whatever phase/filter state it needs across calls so
// chunk boundaries do not click (spec.md §4.2 step 3).
type resampler interface {
	process(in []float32, channels int) []float32
}

// newResampler builds the resampler for the requested quality: sinc for high
// quality, linear otherwise, and a passthrough when the rates match. The
// pure-Go sinc resampler is always available, so there is no fallback path
// from high quality to low latency and no degradation warning.
func newResampler(srcRate, dstRate int, highQuality bool) resampler {
	if srcRate == dstRate {
		return &passthroughResampler{}
	}
	if highQuality {
		return newSincResampler(srcRate, dstRate)
	}
	return newLinearResampler(srcRate, dstRate)
}

type passthroughResampler struct{}

func (p *passthroughResampler) process(in []float32, channels int) []float32 { return in }

// linearResampler implements spec.md's "low-latency" mode: linear
// interpolation between adjacent frames, per channel, with fractional phase
// retained between calls.
type linearResampler struct {
	ratio    float64 // dstRate / srcRate
	phase    float64 // fractional read position into the pending history, in source frames
	history  []float32
	hasHist  bool
	channels int
}

func newLinearResampler(srcRate, dstRate int) *linearResampler {
	return &linearResampler{ratio: float64(dstRate) / float64(srcRate)}
}

func (r *linearResampler) process(in []float32, channels int) []float32 {
	if len(in) == 0 {
		return in
	}
	if r.channels != channels {
		r.channels = channels
		r.hasHist = false
	}

	srcFrames := len(in) / channels

	// Prepend the single carried-over frame from the previous call so
	// interpolation across the chunk boundary has a left neighbor.
	var buf []float32
	if r.hasHist {
		buf = make([]float32, len(r.history)+len(in))
		copy(buf, r.history)
		copy(buf[len(r.history):], in)
	} else {
		buf = in
	}
	totalFrames := len(buf) / channels

	dstFrames := int(float64(srcFrames) * r.ratio)
	out := make([]float32, 0, dstFrames*channels)

	pos := r.phase
	for {
		i0 := int(pos)
		if i0+1 >= totalFrames {
			break
		}
		frac := float32(pos - float64(i0))
		for c := 0; c < channels; c++ {
			a := buf[i0*channels+c]
			b := buf[(i0+1)*channels+c]
			out = append(out, a+(b-a)*frac)
		}
		pos += 1.0 / r.ratio
	}

	// Carry the tail frame(s) needed to continue interpolation next call.
	consumedFrames := int(pos)
	if consumedFrames > totalFrames-1 {
		consumedFrames = totalFrames - 1
	}
	if consumedFrames < 0 {
		consumedFrames = 0
	}
	r.phase = pos - float64(consumedFrames)
	remaining := totalFrames - consumedFrames
	if remaining < 1 {
		remaining = 1
		consumedFrames = totalFrames - 1
		if consumedFrames < 0 {
			consumedFrames = 0
		}
	}
	r.history = append([]float32(nil), buf[consumedFrames*channels:]...)
	r.hasHist = len(r.history) > 0

	return out
}

// sincResampler implements spec.md's "high-quality" mode: band-limited
// windowed-sinc interpolation, generalized from the fixed-ratio
// Hamming-windowed FIR used elsewhere in the pack for anti-aliased
// resampling (48kHz<->16kHz in a sibling voice-assistant project) to an
// arbitrary rational ratio with retained history across calls.
type sincResampler struct {
	srcRate, dstRate int
	ratio            float64
	taps             int
	filter           []float32
	cutoff           float64
	history          []float32
	hasHist          bool
	channels         int
	phase            float64
}

const sincTaps = 64

func newSincResampler(srcRate, dstRate int) *sincResampler {
	ratio := float64(dstRate) / float64(srcRate)
	cutoff := 0.5
	if ratio < 1.0 {
		cutoff = ratio * 0.5
	}

	taps := sincTaps
	filter := make([]float32, taps)
	for i := 0; i < taps; i++ {
		n := float64(i) - float64(taps-1)/2.0
		var v float64
		if n == 0 {
			v = 2.0 * cutoff
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1))
			v = sinc * window
		}
		filter[i] = float32(v)
	}
	var sum float32
	for _, v := range filter {
		sum += v
	}
	if sum != 0 {
		for i := range filter {
			filter[i] /= sum
		}
	}

	return &sincResampler{
		srcRate: srcRate,
		dstRate: dstRate,
		ratio:   ratio,
		taps:    taps,
		filter:  filter,
		cutoff:  cutoff,
	}
}

func (r *sincResampler) process(in []float32, channels int) []float32 {
	if len(in) == 0 {
		return in
	}
	if r.channels != channels {
		r.channels = channels
		r.hasHist = false
		r.history = nil
		r.phase = 0
	}

	half := r.taps / 2
	var buf []float32
	if r.hasHist {
		buf = make([]float32, len(r.history)+len(in))
		copy(buf, r.history)
		copy(buf[len(r.history):], in)
	} else {
		// Left-pad with zeros for the filter's leading taps on the very
		// first call, same as a fresh filter state.
		pad := make([]float32, half*channels)
		buf = append(pad, in...)
	}
	totalFrames := len(buf) / channels

	out := make([]float32, 0, int(float64(len(in)/channels)*r.ratio+1)*channels)
	pos := r.phase
	step := 1.0 / r.ratio

	for {
		center := int(pos) + half
		if center+half >= totalFrames {
			break
		}
		for c := 0; c < channels; c++ {
			var acc float32
			for t := 0; t < r.taps; t++ {
				idx := center - half + t
				acc += buf[idx*channels+c] * r.filter[t]
			}
			out = append(out, acc)
		}
		pos += step
	}

	consumedFrames := int(pos)
	if consumedFrames > totalFrames-2*half-1 {
		consumedFrames = totalFrames - 2*half - 1
	}
	if consumedFrames < 0 {
		consumedFrames = 0
	}
	r.phase = pos - float64(consumedFrames)
	r.history = append([]float32(nil), buf[consumedFrames*channels:]...)
	r.hasHist = true

	return out
}
