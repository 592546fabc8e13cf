package convert

import (
	"math"
	"testing"

	"github.com/ColonelBlimp/proctap"
)

func TestDecodeEncodeInt16RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.0, -1.0}
	enc := encode(samples, proctap.EncodingInt16)
	back := decode(enc, proctap.EncodingInt16)

	if len(back) != len(samples) {
		t.Fatalf("len(back) = %d, want %d", len(back), len(samples))
	}
	for i, s := range samples {
		if diff := math.Abs(float64(back[i] - s)); diff > 1.0/32768.0 {
			t.Errorf("back[%d] = %v, want ~%v (diff %v exceeds quantization step)", i, back[i], s, diff)
		}
	}
}

func TestDecodeEncodeInt24PackedRoundTrip(t *testing.T) {
	samples := []float32{0, 0.25, -0.75, 0.999}
	enc := encode(samples, proctap.EncodingInt24Packed)
	if len(enc) != len(samples)*3 {
		t.Fatalf("len(enc) = %d, want %d", len(enc), len(samples)*3)
	}
	back := decode(enc, proctap.EncodingInt24Packed)
	for i, s := range samples {
		if diff := math.Abs(float64(back[i] - s)); diff > 1.0/8388608.0*2 {
			t.Errorf("back[%d] = %v, want ~%v", i, back[i], s)
		}
	}
}

func TestDecodeEncodeFloat32RoundTrip(t *testing.T) {
	samples := []float32{0, 0.123456, -0.987654, 1.0, -1.0}
	enc := encode(samples, proctap.EncodingFloat32)
	back := decode(enc, proctap.EncodingFloat32)
	for i, s := range samples {
		if back[i] != s {
			t.Errorf("back[%d] = %v, want exactly %v", i, back[i], s)
		}
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	enc := encode([]float32{2.0, -2.0}, proctap.EncodingInt16)
	back := decode(enc, proctap.EncodingInt16)
	if back[0] < 0.99 {
		t.Errorf("back[0] = %v, want clamped near 1.0", back[0])
	}
	if back[1] > -0.99 {
		t.Errorf("back[1] = %v, want clamped near -1.0", back[1])
	}
}

func TestRemixMonoToStereoDuplicates(t *testing.T) {
	out := remix([]float32{0.5, -0.25}, 1, 2)
	want := []float32{0.5, 0.5, -0.25, -0.25}
	for i, v := range want {
		if out[i] != v {
			t.Errorf("out[%d] = %v, want %v", i, out[i], v)
		}
	}
}

func TestRemixStereoToMonoAverages(t *testing.T) {
	out := remix([]float32{1.0, 0.0}, 2, 1)
	if out[0] != 0.5 {
		t.Errorf("out[0] = %v, want 0.5", out[0])
	}
}

func TestRemixSameChannelsIsNoop(t *testing.T) {
	src := []float32{0.1, 0.2, 0.3, 0.4}
	out := remix(src, 2, 2)
	for i := range src {
		if out[i] != src[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], src[i])
		}
	}
}

func TestRemixStereoToSurroundZeroFillsExtraChannels(t *testing.T) {
	out := remix([]float32{0.3, 0.4}, 2, 6)
	if out[0] != 0.3 || out[1] != 0.4 {
		t.Fatalf("front channels not preserved: %v", out[:2])
	}
	for i := 2; i < 6; i++ {
		if out[i] != 0 {
			t.Errorf("out[%d] = %v, want 0", i, out[i])
		}
	}
}

func TestNewResamplerPassthroughWhenRatesMatch(t *testing.T) {
	r := newResampler(48000, 48000, false)
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := r.process(in, 2)
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
}

func TestLinearResamplerOutputLengthWithinOneFrame(t *testing.T) {
	r := newLinearResampler(48000, 16000)
	channels := 2
	srcFrames := 480
	in := make([]float32, srcFrames*channels)
	out := r.process(in, channels)

	wantFrames := float64(srcFrames) * (16000.0 / 48000.0)
	gotFrames := len(out) / channels
	if diff := math.Abs(float64(gotFrames) - wantFrames); diff > 1.0 {
		t.Errorf("got %d dst frames, want ~%v (+-1)", gotFrames, wantFrames)
	}
}

func TestSincResamplerOutputLengthWithinOneFrame(t *testing.T) {
	r := newSincResampler(48000, 16000)
	channels := 2
	srcFrames := 4800
	in := make([]float32, srcFrames*channels)
	out := r.process(in, channels)

	wantFrames := float64(srcFrames) * (16000.0 / 48000.0)
	gotFrames := len(out) / channels
	if diff := math.Abs(float64(gotFrames) - wantFrames); diff > float64(sincTaps) {
		t.Errorf("got %d dst frames, want ~%v", gotFrames, wantFrames)
	}
}

func TestDetectEncodingFloat32(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	data := encode(samples, proctap.EncodingFloat32)
	if got := detectEncoding(data); got != proctap.EncodingFloat32 {
		t.Errorf("detectEncoding() = %v, want EncodingFloat32", got)
	}
}

func TestDetectEncodingInt16Fallback(t *testing.T) {
	samples := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	data := encode(samples, proctap.EncodingInt16)
	if got := detectEncoding(data); got != proctap.EncodingInt16 {
		t.Errorf("detectEncoding() = %v, want EncodingInt16", got)
	}
}

func TestDetectEncodingAllZeroFallsBackToInt16(t *testing.T) {
	data := make([]byte, 64)
	if got := detectEncoding(data); got != proctap.EncodingInt16 {
		t.Errorf("detectEncoding() = %v, want EncodingInt16 (no evidence of float32)", got)
	}
}
