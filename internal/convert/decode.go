package convert

import (
	"encoding/binary"
	"math"

	"github.com/ColonelBlimp/proctap"
)

// decode converts raw PCM bytes in the given encoding to canonical
// interleaved float32 samples (spec.md §4.2 step 1). Integer encodings are
// scaled by 1/2^(bits-1) with saturation at +-1.0; the 24-bit packed
// encoding reads little-endian 3-byte groups and sign-extends.
func decode(data []byte, enc proctap.SampleEncoding) []float32 {
	width := enc.BytesPerSample()
	if width == 0 {
		return nil
	}
	n := len(data) / width
	out := make([]float32, n)

	switch enc {
	case proctap.EncodingInt16:
		const scale = 1.0 / 32768.0
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(v) * scale
		}
	case proctap.EncodingInt24Packed:
		const scale = 1.0 / 8388608.0
		for i := 0; i < n; i++ {
			o := i * 3
			v := int32(data[o]) | int32(data[o+1])<<8 | int32(data[o+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF) // sign-extend from bit 23
			}
			out[i] = float32(v) * scale
		}
	case proctap.EncodingInt24In32:
		const scale = 1.0 / 8388608.0
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			// Value occupies the low 24 bits, already sign-extended by
			// the producer into the full 32-bit word on most backends;
			// normalize defensively by re-deriving from bit 23 in case it isn't.
			v = (v << 8) >> 8
			out[i] = float32(v) * scale
		}
	case proctap.EncodingInt32:
		const scale = 1.0 / 2147483648.0
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(v) * scale
		}
	case proctap.EncodingFloat32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
	}
	return out
}
