// Package convert implements the format-conversion pipeline of spec.md §4.2:
// decode to canonical float32, channel remix, resample, encode to the
// destination encoding.
package convert

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/proctap"
)

// Pipeline converts PCM audio from a source format to a destination format.
// It retains resampler phase state across calls and is mutated only by the
// caller's single worker goroutine — a Pipeline is not safe for concurrent
// use (spec.md §3's "converter pipeline state" ownership note).
type Pipeline struct {
	src  proctap.AudioFormat
	dst  proctap.AudioFormat
	res  resampler
	auto bool

	detected     bool
	detectedOnce proctap.SampleEncoding
}

// New builds a Pipeline from src to dst. If autoDetect is true, src.Encoding
// is ignored and the encoding is inferred from the first buffer passed to
// Convert and cached for the session (spec.md §4.2).
func New(src, dst proctap.AudioFormat, quality proctap.ResamplingQuality, autoDetect bool) *Pipeline {
	return &Pipeline{
		src:  src,
		dst:  dst,
		res:  newResampler(src.SampleRateHz, dst.SampleRateHz, quality == proctap.QualityHighQuality),
		auto: autoDetect,
	}
}

// NeedsConversion reports whether src and dst differ in any respect. When
// they match exactly, the coordinator should skip the converter entirely so
// bytes flow through unchanged (spec.md §8 boundary behavior).
func NeedsConversion(src, dst proctap.AudioFormat) bool {
	return src != dst
}

// Convert runs decode -> remix -> resample -> encode on data, which must be
// a whole-frame multiple of src's frame size (or, if relying on
// auto-detection, a multiple of the detected encoding's sample width).
// Zero-length input returns zero-length output without mutating state.
func (p *Pipeline) Convert(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	srcEncoding := p.src.Encoding
	if p.auto {
		if !p.detected {
			p.detectedOnce = detectEncoding(data)
			p.detected = true
			log.Debug("auto-detected source encoding", "encoding", p.detectedOnce)
		}
		srcEncoding = p.detectedOnce
	}

	width := srcEncoding.BytesPerSample()
	frameBytes := width * p.src.Channels
	if frameBytes == 0 || len(data)%frameBytes != 0 {
		return nil, &proctap.Error{
			Op:      "convert.Convert",
			Kind:    proctap.KindInvalidArgument,
			Message: fmt.Sprintf("input length %d is not a multiple of frame size %d", len(data), frameBytes),
		}
	}

	samples := decode(data, srcEncoding)
	samples = remix(samples, p.src.Channels, p.dst.Channels)
	samples = p.res.process(samples, p.dst.Channels)
	return encode(samples, p.dst.Encoding), nil
}
