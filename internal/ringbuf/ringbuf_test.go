package ringbuf

import (
	"encoding/binary"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestNewRoundsToWholeFrames(t *testing.T) {
	rb := New(10, 4) // 10 bytes / 4-byte frames = 2 whole frames = 8 bytes
	if rb.Capacity() != 8 {
		t.Errorf("Capacity() = %d, want 8", rb.Capacity())
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	rb := New(16, 4)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	rb.Push(data)

	if got := rb.Available(); got != 8 {
		t.Fatalf("Available() = %d, want 8", got)
	}

	out := rb.Pop(100)
	if len(out) != 8 {
		t.Fatalf("Pop() returned %d bytes, want 8", len(out))
	}
	for i, b := range out {
		if b != data[i] {
			t.Errorf("Pop()[%d] = %d, want %d", i, b, data[i])
		}
	}
}

func TestPopRoundsDownToWholeFrames(t *testing.T) {
	rb := New(16, 4)
	rb.Push([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	out := rb.Pop(5) // not a multiple of 4
	if len(out) != 4 {
		t.Fatalf("Pop(5) returned %d bytes, want 4 (rounded down)", len(out))
	}
}

func TestPopEmptyReturnsNothing(t *testing.T) {
	rb := New(16, 4)
	if out := rb.Pop(16); len(out) != 0 {
		t.Errorf("Pop() on empty buffer = %v, want empty", out)
	}
}

func TestOverflowDropsOldestWholeFrames(t *testing.T) {
	const frameBytes = 4
	rb := New(4*frameBytes, frameBytes) // capacity = 4 frames

	// Push 10x capacity worth of frames, each frame containing its
	// monotonically increasing sequence number, consumer idle throughout.
	const totalFrames = 40
	for i := 0; i < totalFrames; i++ {
		frame := make([]byte, frameBytes)
		binary.LittleEndian.PutUint32(frame, uint32(i))
		rb.Push(frame)
	}

	out := rb.Pop(rb.Capacity())
	if len(out) != rb.Capacity() {
		t.Fatalf("Pop() returned %d bytes, want exactly capacity %d", len(out), rb.Capacity())
	}

	// The retained frames must be the most recently produced ones, in order.
	wantFirst := totalFrames - rb.Capacity()/frameBytes
	for i := 0; i*frameBytes < len(out); i++ {
		got := binary.LittleEndian.Uint32(out[i*frameBytes : i*frameBytes+frameBytes])
		want := uint32(wantFirst + i)
		if got != want {
			t.Errorf("frame %d = %d, want %d", i, got, want)
		}
	}
}

func TestOverflowDurationZeroWhenNotOverflowing(t *testing.T) {
	rb := New(16, 4)
	rb.Push([]byte{1, 2, 3, 4})
	if d := rb.OverflowDuration(); d != 0 {
		t.Errorf("OverflowDuration() = %v, want 0 on a non-overflowing buffer", d)
	}
}

func TestOverflowDurationTracksContinuousOverflow(t *testing.T) {
	const frameBytes = 4
	rb := New(2*frameBytes, frameBytes) // capacity = 2 frames = 8 bytes

	rb.Push(make([]byte, frameBytes)) // occupies 1 of 2 frames; no overflow yet
	if d := rb.OverflowDuration(); d != 0 {
		t.Fatalf("OverflowDuration() = %v, want 0 before any overflow", d)
	}

	// With 1 frame already occupied, a 2-frame push must drop the oldest
	// frame to make room, starting a continuous-overflow streak.
	rb.Push(make([]byte, 2*frameBytes))
	if d := rb.OverflowDuration(); d <= 0 {
		t.Fatalf("OverflowDuration() = %v, want > 0 immediately after an overflowing push", d)
	}

	time.Sleep(5 * time.Millisecond)
	rb.Push(make([]byte, frameBytes)) // buffer is full, so any push keeps overflowing
	if d := rb.OverflowDuration(); d < 5*time.Millisecond {
		t.Errorf("OverflowDuration() = %v, want it to keep growing across continuous overflow", d)
	}

	// Draining room and pushing within capacity clears the overflow streak.
	rb.Pop(rb.Capacity())
	rb.Push(make([]byte, frameBytes))
	if d := rb.OverflowDuration(); d != 0 {
		t.Errorf("OverflowDuration() = %v, want 0 after a non-overflowing push", d)
	}
}

func TestPartialFrameNeverReturned(t *testing.T) {
	rb := New(16, 3) // 16 / 3 = 5 frames = 15 bytes capacity
	rb.Push([]byte{1, 2, 3, 4, 5, 6, 7})
	out := rb.Pop(100)
	if len(out)%3 != 0 {
		t.Fatalf("Pop() returned %d bytes, not a multiple of frame size 3", len(out))
	}
}

// TestDropOldestProperty verifies spec.md §8's ring-buffer invariants for
// arbitrary single-producer push sequences followed by a single consumer
// drain: popped_frames <= produced_frames, popped frames are a contiguous
// suffix of produced frames, and every read is whole-frame.
func TestDropOldestProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const frameBytes = 4
		capFrames := rapid.IntRange(1, 20).Draw(t, "capFrames")
		rb := New(capFrames*frameBytes, frameBytes)

		numPushes := rapid.IntRange(0, 100).Draw(t, "numPushes")
		var produced []uint32
		for i := 0; i < numPushes; i++ {
			frame := make([]byte, frameBytes)
			binary.LittleEndian.PutUint32(frame, uint32(i))
			rb.Push(frame)
			produced = append(produced, uint32(i))
		}

		out := rb.Pop(rb.Capacity())
		if len(out)%frameBytes != 0 {
			t.Fatalf("popped %d bytes, not frame-aligned", len(out))
		}
		numPopped := len(out) / frameBytes
		if numPopped > len(produced) {
			t.Fatalf("popped %d frames, only %d produced", numPopped, len(produced))
		}

		// Popped frames must equal the most recent numPopped entries, in order.
		want := produced[len(produced)-numPopped:]
		for i := 0; i < numPopped; i++ {
			got := binary.LittleEndian.Uint32(out[i*frameBytes : i*frameBytes+frameBytes])
			if got != want[i] {
				t.Fatalf("frame %d = %d, want %d (not a contiguous suffix)", i, got, want[i])
			}
		}
	})
}
