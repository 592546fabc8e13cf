// Package proctap captures the audio output of a single process and
// delivers it to the caller as a normalized stream of linear PCM samples.
package proctap

import "fmt"

// SampleEncoding identifies the linear PCM sample layout of an AudioFormat.
type SampleEncoding int

const (
	// EncodingInt16 is signed 16-bit little-endian PCM.
	EncodingInt16 SampleEncoding = iota
	// EncodingInt24Packed is signed 24-bit PCM packed into 3 bytes, little-endian.
	EncodingInt24Packed
	// EncodingInt24In32 is signed 24-bit PCM sign-extended into a 4-byte little-endian word.
	EncodingInt24In32
	// EncodingInt32 is signed 32-bit little-endian PCM.
	EncodingInt32
	// EncodingFloat32 is little-endian IEEE-754 float32 (the native byte order
	// on the supported Windows and macOS hosts), normalized to [-1.0, 1.0].
	EncodingFloat32
)

// String implements fmt.Stringer.
func (e SampleEncoding) String() string {
	switch e {
	case EncodingInt16:
		return "int16"
	case EncodingInt24Packed:
		return "int24-packed"
	case EncodingInt24In32:
		return "int24-in-32"
	case EncodingInt32:
		return "int32"
	case EncodingFloat32:
		return "float32"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// BytesPerSample returns the storage width of a single sample in this encoding.
func (e SampleEncoding) BytesPerSample() int {
	switch e {
	case EncodingInt16:
		return 2
	case EncodingInt24Packed:
		return 3
	case EncodingInt24In32, EncodingInt32, EncodingFloat32:
		return 4
	default:
		return 0
	}
}

// AudioFormat is the (sample_rate, channel_count, sample_encoding) triple
// spec.md §3 describes. It is immutable once observed from the OS (native)
// or chosen by the caller (target).
type AudioFormat struct {
	SampleRateHz int
	Channels     int
	Encoding     SampleEncoding
}

// BytesPerFrame returns channel_count * bytes_per_sample, the invariant
// spec.md §3 requires of every AudioFormat.
func (f AudioFormat) BytesPerFrame() int {
	return f.Channels * f.Encoding.BytesPerSample()
}

// Valid reports whether the format satisfies spec.md §3's bounds:
// 0 < sample rate <= 384000 Hz, 1 <= channels <= 8.
func (f AudioFormat) Valid() bool {
	return f.SampleRateHz > 0 && f.SampleRateHz <= 384000 &&
		f.Channels >= 1 && f.Channels <= 8 &&
		f.Encoding.BytesPerSample() > 0
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRateHz, f.Channels, f.Encoding)
}

// ResamplingQuality selects the trade-off between latency and audio quality
// in the resample stage of the format converter (spec.md §4.2).
type ResamplingQuality int

const (
	// QualityLowLatency uses linear interpolation between adjacent frames.
	QualityLowLatency ResamplingQuality = iota
	// QualityHighQuality uses band-limited sinc interpolation.
	QualityHighQuality
)

func (q ResamplingQuality) String() string {
	if q == QualityHighQuality {
		return "high-quality"
	}
	return "low-latency"
}
