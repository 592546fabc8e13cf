//go:build darwin

package darwin

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/recovery"
	"github.com/ColonelBlimp/proctap/internal/ringbuf"
)

// helperBinaryEnvVar overrides the search path for the content-sharing
// helper binary (spec.md §6's environment-variable surface).
const helperBinaryEnvVar = "PROCTAP_SCREENCAPTURE_HELPER"

const defaultHelperBinaryName = "screencapture-audio"

// sharingRingCapacityBytes sizes the hand-off buffer for roughly 500ms at
// 48kHz stereo int16 (half the tap engine's float32-sized buffer); the
// helper's stdout is trusted to deliver exactly the requested format, so
// frame size is known up front.
const sharingRingCapacityBytes = 48000 * 2 * 2 / 2

// helperStartupTimeout bounds how long Start waits for the helper to either
// produce its first byte or exit, before giving up and reporting it started
// cleanly anyway (spec.md §4.5: a live but momentarily silent helper is not
// the same as one that already died).
const helperStartupTimeout = 500 * time.Millisecond

// SharingEngine is the macOS content-sharing backend of spec.md §4.5: it
// spawns a bundle-id-addressed helper process and treats its stdout as raw,
// trusted PCM in the format it was asked for.
type SharingEngine struct {
	pid      int
	format   proctap.AudioFormat
	bundleID string

	mu   sync.Mutex
	cmd  *exec.Cmd
	ring *ringbuf.RingBuffer
	wg   sync.WaitGroup
}

// NewSharingEngine constructs a content-sharing engine for pid, requesting
// format from the helper. The bundle id is resolved lazily in Start so
// construction never fails.
func NewSharingEngine(pid int, format proctap.AudioFormat) *SharingEngine {
	return &SharingEngine{pid: pid, format: format}
}

func (e *SharingEngine) Start(ctx context.Context) error {
	if err := checkAudioInputAuthorization("darwin.SharingEngine.Start"); err != nil {
		return err
	}

	bundleID, err := BundleIDForPID(e.pid)
	if err != nil {
		return &proctap.Error{Op: "darwin.SharingEngine.Start", Kind: proctap.KindNoAudio,
			Message: fmt.Sprintf("could not determine bundle id for pid %d: %v", e.pid, err)}
	}
	e.bundleID = bundleID

	helperPath := helperBinaryPath()
	cmd := exec.CommandContext(ctx, helperPath,
		bundleID,
		fmt.Sprintf("%d", e.format.SampleRateHz),
		fmt.Sprintf("%d", e.format.Channels),
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &proctap.Error{Op: "darwin.SharingEngine.Start", Kind: proctap.KindPlatformError,
			Message: "failed to open helper stdout pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &proctap.Error{Op: "darwin.SharingEngine.Start", Kind: proctap.KindPlatformError,
			Message: fmt.Sprintf("failed to start %s", helperPath), Err: err}
	}

	e.mu.Lock()
	e.cmd = cmd
	e.ring = ringbuf.New(sharingRingCapacityBytes, e.format.BytesPerFrame())
	e.mu.Unlock()

	gotData := make(chan struct{})
	exited := make(chan struct{})

	e.wg.Add(1)
	go e.readLoop(stdout, gotData, exited)

	select {
	case <-gotData:
		return nil
	case <-exited:
		e.mu.Lock()
		e.cmd = nil
		e.ring = nil
		e.mu.Unlock()
		cmd.Wait()
		return &proctap.Error{Op: "darwin.SharingEngine.Start", Kind: proctap.KindNoAudio,
			Message: fmt.Sprintf("content-sharing helper for %s exited before producing audio", bundleID)}
	case <-time.After(helperStartupTimeout):
		return nil
	}
}

// readLoop drains the helper's stdout into the ring buffer. gotData is
// closed once on the first non-empty read; exited is closed when the helper
// closes its end of the pipe (spec.md §4.5's "helper exit before the first
// byte ⇒ unavailable" detection).
func (e *SharingEngine) readLoop(stdout io.ReadCloser, gotData, exited chan struct{}) {
	defer recovery.HandlePanicFunc(nil)
	defer e.wg.Done()
	defer close(exited)

	signaled := false
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if !signaled {
				signaled = true
				close(gotData)
			}
			e.mu.Lock()
			ring := e.ring
			e.mu.Unlock()
			if ring != nil {
				ring.Push(buf[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

func (e *SharingEngine) Read(maxBytes int) []byte {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return nil
	}
	return ring.Pop(maxBytes)
}

func (e *SharingEngine) NativeFormat() proctap.AudioFormat {
	return e.format
}

func (e *SharingEngine) Overflowing() time.Duration {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.OverflowDuration()
}

// Stop terminates the helper with a bounded wait, then kills it (spec.md
// §4.5's "bounded wait and then a kill").
func (e *SharingEngine) Stop() error {
	e.mu.Lock()
	cmd := e.cmd
	e.cmd = nil
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	cmd.Process.Signal(os.Interrupt)

	done := make(chan struct{})
	go func() { cmd.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cmd.Process.Kill()
		<-done
	}

	e.wg.Wait()
	return nil
}

func helperBinaryPath() string {
	if p := os.Getenv(helperBinaryEnvVar); p != "" {
		return p
	}
	return defaultHelperBinaryName
}
