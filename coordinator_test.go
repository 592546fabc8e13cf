package proctap

import (
	"context"
	"testing"
	"time"

	"github.com/ColonelBlimp/proctap/internal/platform"
)

type fakeBackend struct {
	native    AudioFormat
	chunks    [][]byte
	stopCalls int
}

func (f *fakeBackend) Start(ctx context.Context) error { return nil }
func (f *fakeBackend) Stop() error                     { f.stopCalls++; return nil }
func (f *fakeBackend) NativeFormat() AudioFormat       { return f.native }
func (f *fakeBackend) Overflowing() time.Duration      { return 0 }
func (f *fakeBackend) Read(maxBytes int) []byte {
	if len(f.chunks) == 0 {
		return nil
	}
	c := f.chunks[0]
	f.chunks = f.chunks[1:]
	return c
}

var _ platform.Backend = (*fakeBackend)(nil)

func TestStartRejectsInvalidPID(t *testing.T) {
	c := New(0, AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingInt16}, QualityLowLatency, nil)
	if err := c.Start(); err == nil {
		t.Fatal("Start() error = nil, want invalid-argument for pid 0")
	}
}

func TestStartRejectsInvalidFormat(t *testing.T) {
	c := New(123, AudioFormat{SampleRateHz: 0, Channels: 2, Encoding: EncodingInt16}, QualityLowLatency, nil)
	if err := c.Start(); err == nil {
		t.Fatal("Start() error = nil, want invalid-argument for zero sample rate")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	fb := &fakeBackend{native: AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingInt16}}
	c := New(1, fb.native, QualityLowLatency, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.backend = fb
	c.cancel = cancel
	c.queue = make(chan []byte, outputQueueCapacity)
	c.started.Store(true)
	_ = ctx

	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("third Stop() error = %v", err)
	}
	if fb.stopCalls != 1 {
		t.Errorf("backend.Stop() called %d times, want 1", fb.stopCalls)
	}
}

func TestReadReturnsNilOnTimeout(t *testing.T) {
	c := New(1, AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingInt16}, QualityLowLatency, nil)
	c.queue = make(chan []byte, outputQueueCapacity)

	start := time.Now()
	out := c.Read(1024, 20*time.Millisecond)
	if out != nil {
		t.Errorf("Read() = %v, want nil on timeout", out)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Read() returned after %v, want >= 20ms", elapsed)
	}
}

func TestReadReturnsQueuedChunk(t *testing.T) {
	c := New(1, AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingInt16}, QualityLowLatency, nil)
	c.queue = make(chan []byte, outputQueueCapacity)
	c.queue <- []byte{1, 2, 3, 4}

	out := c.Read(1024, 20*time.Millisecond)
	if len(out) != 4 {
		t.Fatalf("Read() returned %d bytes, want 4", len(out))
	}
}

func TestPushDropOldestDropsOldestOnFull(t *testing.T) {
	c := New(1, AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingInt16}, QualityLowLatency, nil)
	c.queue = make(chan []byte, 2)

	c.pushDropOldest([]byte{1})
	c.pushDropOldest([]byte{2})
	c.pushDropOldest([]byte{3}) // queue full at {1,2}; should drop 1, keep {2,3}

	first := <-c.queue
	second := <-c.queue
	if first[0] != 2 || second[0] != 3 {
		t.Errorf("queue contents = [%v %v], want [2 3]", first, second)
	}
}

func TestFormatReportsTargetNotNative(t *testing.T) {
	target := AudioFormat{SampleRateHz: 48000, Channels: 2, Encoding: EncodingFloat32}
	c := New(1, target, QualityLowLatency, nil)
	if got := c.Format(); got != target {
		t.Errorf("Format() = %v, want %v", got, target)
	}
}
