package convert

import (
	"encoding/binary"
	"math"

	"github.com/ColonelBlimp/proctap"
)

// encode converts canonical float32 samples to the destination encoding
// (spec.md §4.2 step 4). Samples are clamped to +-1.0 before scaling;
// integer outputs round to nearest, ties to even.
func encode(samples []float32, enc proctap.SampleEncoding) []byte {
	width := enc.BytesPerSample()
	if width == 0 {
		return nil
	}
	out := make([]byte, len(samples)*width)

	switch enc {
	case proctap.EncodingInt16:
		for i, s := range samples {
			v := roundToEven(clamp(s) * 32767.0)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
		}
	case proctap.EncodingInt24Packed:
		for i, s := range samples {
			v := int32(roundToEven(clamp(s) * 8388607.0))
			o := i * 3
			out[o] = byte(v)
			out[o+1] = byte(v >> 8)
			out[o+2] = byte(v >> 16)
		}
	case proctap.EncodingInt24In32:
		for i, s := range samples {
			v := int32(roundToEven(clamp(s) * 8388607.0))
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
	case proctap.EncodingInt32:
		for i, s := range samples {
			v := int64(roundToEven(clamp(s) * 2147483647.0))
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(v)))
		}
	case proctap.EncodingFloat32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(clamp(s)))
		}
	}
	return out
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

// roundToEven rounds to the nearest integer, ties to even, as spec.md §4.2
// requires for integer encode targets.
func roundToEven(v float32) float32 {
	return float32(math.RoundToEven(float64(v)))
}
