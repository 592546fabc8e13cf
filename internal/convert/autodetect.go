package convert

import (
	"encoding/binary"
	"math"

	"github.com/ColonelBlimp/proctap"
)

// autoDetectWindowBytes is the size of the leading window inspected when the
// caller does not declare the source encoding. spec.md §9 leaves the exact
// size as an open question and suggests 400 bytes balances false detection
// on near-silent leading audio against startup latency; original_source's
// converter_native.py recommends the same figure, so SPEC_FULL.md adopts it.
const autoDetectWindowBytes = 400

// detectEncoding inspects a leading window of the first buffer and decides
// between int16 and float32 (spec.md §4.2's auto-detection rule). It never
// returns anything else: the converter is only ever asked to auto-detect
// between these two encodings, matching the formats platform backends
// actually report ambiguously (WASAPI may say int16 while delivering
// float32, or vice versa).
func detectEncoding(data []byte) proctap.SampleEncoding {
	window := data
	if len(window) > autoDetectWindowBytes {
		window = window[:autoDetectWindowBytes]
	}

	// Reinterpret the window as float32 and check whether it looks like
	// credible normalized audio ([-1, 1]-ish). If it doesn't — values far
	// outside that range, or NaN/Inf bit patterns — the bytes are almost
	// certainly int16 PCM, not float32, so int16 wins by default.
	float32Plausible := true
	sawNonZeroFloat := false

	n32 := len(window) / 4
	for i := 0; i < n32; i++ {
		bits := binary.LittleEndian.Uint32(window[i*4:])
		f := math.Float32frombits(bits)
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) || f > 8.0 || f < -8.0 {
			float32Plausible = false
			break
		}
		if f != 0 {
			sawNonZeroFloat = true
		}
	}

	if float32Plausible && sawNonZeroFloat {
		return proctap.EncodingFloat32
	}
	return proctap.EncodingInt16
}
