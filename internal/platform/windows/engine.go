//go:build windows

// Package windows implements the WASAPI process-loopback capture engine of
// spec.md §4.3, grounded on the moutend/go-wca loopback example in the
// retrieval pack for the IAudioClient/IAudioCaptureClient call sequence, with
// process-scoped activation hand-wrapped in activation.go.
package windows

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca"
	"golang.org/x/sys/windows"

	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/recovery"
	"github.com/ColonelBlimp/proctap/internal/ringbuf"
)

// pullEventTimeoutMs is the bounded wait on the buffer-ready event within
// each wake of the pull loop (spec.md §4.3 step 5).
const pullEventTimeoutMs = 100

// ringCapacityBytes sizes the hand-off buffer for roughly 500ms at a typical
// native format (48kHz stereo float32); the buffer rounds down to whole
// frames once the real frame size is known.
const ringCapacityBytes = 48000 * 2 * 4 / 2

// Engine is the Windows backend: a process-scoped WASAPI loopback session.
type Engine struct {
	pid uint32

	mu        sync.Mutex
	client    *wca.IAudioClient
	capture   *wca.IAudioCaptureClient
	readyEvt  windows.Handle
	native    proctap.AudioFormat
	blockAlgn uint32

	ring    *ringbuf.RingBuffer
	running atomic.Bool
	healthy atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Windows engine targeting pid. Start performs the actual
// activation; construction never fails.
func New(pid int) *Engine {
	return &Engine{pid: uint32(pid)}
}

func (e *Engine) Start(ctx context.Context) (err error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("CoInitializeEx: %w", err))
	}

	unk, err := activateProcessLoopback(e.pid)
	if err != nil {
		ole.CoUninitialize()
		return proctap.NewPlatformError("windows.Start", 0, err)
	}
	defer func() {
		if err != nil {
			unk.Release()
		}
	}()

	disp, err := unk.QueryInterface(wca.IID_IAudioClient)
	if err != nil {
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("QueryInterface(IAudioClient): %w", err))
	}
	client := (*wca.IAudioClient)(unsafe.Pointer(disp))

	var wfx *wca.WAVEFORMATEX
	if err = client.GetMixFormat(&wfx); err != nil {
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("GetMixFormat: %w", err))
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))

	const refTimesPerSec10ms = 10 * 1000 * 10 // 10ms in 100-ns units
	err = client.Initialize(
		wca.AUDCLNT_SHAREMODE_SHARED,
		wca.AUDCLNT_STREAMFLAGS_LOOPBACK|wca.AUDCLNT_STREAMFLAGS_EVENTCALLBACK,
		refTimesPerSec10ms, 0, wfx, nil,
	)
	if err != nil {
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("Initialize: %w", err))
	}

	evt, werr := windows.CreateEvent(nil, 0, 0, nil)
	if werr != nil {
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("CreateEvent: %w", werr))
	}
	if err = client.SetEventHandle(uintptr(evt)); err != nil {
		windows.CloseHandle(evt)
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("SetEventHandle: %w", err))
	}

	var captureClient *wca.IAudioCaptureClient
	if err = client.GetService(wca.IID_IAudioCaptureClient, &captureClient); err != nil {
		windows.CloseHandle(evt)
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("GetService(IAudioCaptureClient): %w", err))
	}

	native := proctap.AudioFormat{
		SampleRateHz: int(wfx.NSamplesPerSec),
		Channels:     int(wfx.NChannels),
		Encoding:     encodingFromWaveFormat(wfx),
	}

	if err = client.Start(); err != nil {
		captureClient.Release()
		windows.CloseHandle(evt)
		client.Release()
		return proctap.NewPlatformError("windows.Start", 0, fmt.Errorf("Start: %w", err))
	}

	e.mu.Lock()
	e.client = client
	e.capture = captureClient
	e.readyEvt = evt
	e.native = native
	e.blockAlgn = uint32(wfx.NBlockAlign)
	e.ring = ringbuf.New(ringCapacityBytes, native.BytesPerFrame())
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.running.Store(true)
	e.healthy.Store(true)

	e.wg.Add(1)
	go e.pullLoop()

	log.Debug("wasapi loopback started", "pid", e.pid, "native", native)
	return nil
}

// pullLoop is the OS-callback-adjacent producer thread of spec.md §5: it
// waits on the ready event, drains packets into the ring buffer, and must
// never block indefinitely or allocate in a way that stalls delivery.
func (e *Engine) pullLoop() {
	defer recovery.HandlePanicFunc(nil)
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		ret, _ := windows.WaitForSingleObject(e.readyEvt, pullEventTimeoutMs)
		if ret != windows.WAIT_OBJECT_0 {
			continue
		}

		for {
			var data *byte
			var frames uint32
			var flags uint32
			var devicePos uint64
			var qpcPos uint64

			if err := e.capture.GetBuffer(&data, &frames, &flags, &devicePos, &qpcPos); err != nil {
				e.healthy.Store(false)
				return
			}
			if frames == 0 {
				break
			}

			size := int(frames) * int(e.blockAlgn)
			if flags&wca.AUDCLNT_BUFFERFLAGS_SILENT != 0 || data == nil {
				e.ring.Push(make([]byte, size))
			} else {
				e.ring.Push(unsafe.Slice(data, size))
			}

			if err := e.capture.ReleaseBuffer(frames); err != nil {
				e.healthy.Store(false)
				return
			}
		}
	}
}

// Read pops at most maxBytes from the ring buffer. Once the pull loop has
// marked the session unhealthy (a fatal GetBuffer/ReleaseBuffer failure),
// Read drains whatever is left and then reports empty from then on (spec.md
// §4.3's "subsequent reads return empty").
func (e *Engine) Read(maxBytes int) []byte {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return nil
	}
	data := ring.Pop(maxBytes)
	if len(data) == 0 && !e.healthy.Load() {
		return nil
	}
	return data
}

func (e *Engine) NativeFormat() proctap.AudioFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.native
}

func (e *Engine) Overflowing() time.Duration {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.OverflowDuration()
}

func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	close(e.stopCh)
	done := make(chan struct{})
	go func() { e.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warn("wasapi pull loop join timed out", "pid", e.pid)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		e.client.Stop()
	}
	if e.readyEvt != 0 {
		windows.CloseHandle(e.readyEvt)
		e.readyEvt = 0
	}
	if e.capture != nil {
		e.capture.Release()
		e.capture = nil
	}
	if e.client != nil {
		e.client.Release()
		e.client = nil
	}
	ole.CoUninitialize()
	return nil
}

// encodingFromWaveFormat maps a WAVEFORMATEX's bit depth and format tag to
// the nearest SampleEncoding spec.md §3 recognizes. WASAPI mix formats are
// always IEEE float or integer PCM; float is reported via
// WAVE_FORMAT_IEEE_FLOAT (tag 3) or the extensible subformat.
func encodingFromWaveFormat(wfx *wca.WAVEFORMATEX) proctap.SampleEncoding {
	const waveFormatIEEEFloat = 3
	const waveFormatExtensible = 0xFFFE
	isFloat := wfx.WFormatTag == waveFormatIEEEFloat
	if wfx.WFormatTag == waveFormatExtensible {
		// WAVEFORMATEXTENSIBLE: the SubFormat GUID starts 24 bytes into the
		// structure, and its first DWORD is 3 for KSDATAFORMAT_SUBTYPE_IEEE_FLOAT.
		subFormat := *(*uint32)(unsafe.Add(unsafe.Pointer(wfx), 24))
		isFloat = subFormat == waveFormatIEEEFloat
	}
	if isFloat && wfx.WBitsPerSample == 32 {
		return proctap.EncodingFloat32
	}
	switch wfx.WBitsPerSample {
	case 16:
		return proctap.EncodingInt16
	case 24:
		return proctap.EncodingInt24Packed
	case 32:
		return proctap.EncodingInt32
	default:
		return proctap.EncodingInt16
	}
}
