//go:build windows

package windows

// go-wca (the COM wrapper the rest of this engine uses) has no binding for
// ActivateAudioInterfaceAsync or the AUDIOCLIENT_ACTIVATION_PARAMS /
// PROCESS_LOOPBACK_PARAMS structures that scope a WASAPI session to a single
// process id (spec.md §4.3 step 1). This file hand-wraps just that one call,
// the way the rest of the package leans on go-wca for everything else.

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
)

var (
	modmmdevapi                     = syscall.NewLazyDLL("mmdevapi.dll")
	procActivateAudioInterfaceAsync = modmmdevapi.NewProc("ActivateAudioInterfaceAsync")
)

// virtualAudioDeviceProcessLoopback is the well-known device id string that,
// combined with AUDIOCLIENT_ACTIVATION_PARAMS, scopes loopback capture to a
// process tree instead of the default render endpoint.
const virtualAudioDeviceProcessLoopback = "VAD\\Process_Loopback"

const (
	activationTypeProcessLoopback = 1

	// processLoopbackModeIncludeTargetProcessTree captures the target
	// process and every process it spawns; this is the mode spec.md §4.3
	// calls "process loopback with tree inclusion".
	processLoopbackModeIncludeTargetProcessTree = 0
)

// audioClientActivationParams mirrors AUDIOCLIENT_ACTIVATION_PARAMS with its
// PROCESS_LOOPBACK_PARAMS union arm, laid out the way audioclientactivationparams.h
// packs it: a DWORD discriminant followed by {DWORD targetProcessId; DWORD mode}.
type audioClientActivationParams struct {
	activationType uint32
	targetPID      uint32
	mode           uint32
	_              uint32 // pad to the union's widest alternative
}

const vtBlob = 0x41 // VT_BLOB

// blobPropVariant is the PROPVARIANT shape ActivateAudioInterfaceAsync's
// pActivationParams expects: a VT_BLOB tag wrapping a length-prefixed byte blob.
type blobPropVariant struct {
	vt        uint16
	reserved1 uint16
	reserved2 uint16
	reserved3 uint16
	blobSize  uint32
	blobData  uintptr
}

// completionHandlerVtbl is the IActivateAudioInterfaceCompletionHandler
// vtable: IUnknown's three methods plus ActivateCompleted.
type completionHandlerVtbl struct {
	QueryInterface    uintptr
	AddRef            uintptr
	Release           uintptr
	ActivateCompleted uintptr
}

// completionHandler is a minimal COM object satisfying
// IActivateAudioInterfaceCompletionHandler. ActivateAudioInterfaceAsync calls
// back into it, possibly on an arbitrary thread pool thread, once activation
// finishes; it signals done so Activate's caller can stop waiting.
type completionHandler struct {
	vtbl *completionHandlerVtbl
	refs int32

	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
	result   unsafe.Pointer // IActivateAudioInterfaceAsyncOperation*
	hr       int32
}

var (
	completionVtblSingleton completionHandlerVtbl
	completionVtblOnce      sync.Once
)

func sharedCompletionVtbl() *completionHandlerVtbl {
	completionVtblOnce.Do(func() {
		completionVtblSingleton = completionHandlerVtbl{
			QueryInterface:    syscall.NewCallback(completionQueryInterface),
			AddRef:            syscall.NewCallback(completionAddRef),
			Release:           syscall.NewCallback(completionRelease),
			ActivateCompleted: syscall.NewCallback(completionActivateCompleted),
		}
	})
	return &completionVtblSingleton
}

func newCompletionHandler() *completionHandler {
	return &completionHandler{
		vtbl: sharedCompletionVtbl(),
		refs: 1,
		done: make(chan struct{}),
	}
}

func handlerFromThis(this uintptr) *completionHandler {
	return (*completionHandler)(unsafe.Pointer(this))
}

func completionQueryInterface(this, riid, ppv uintptr) uintptr {
	if ppv != 0 {
		*(*uintptr)(unsafe.Pointer(ppv)) = this
	}
	completionAddRef(this)
	return 0 // S_OK
}

func completionAddRef(this uintptr) uintptr {
	h := handlerFromThis(this)
	h.refs++
	return uintptr(h.refs)
}

func completionRelease(this uintptr) uintptr {
	h := handlerFromThis(this)
	h.refs--
	return uintptr(h.refs)
}

// completionActivateCompleted is invoked by the OS once
// ActivateAudioInterfaceAsync resolves. It stashes the result and unblocks
// the waiter; it must not block or allocate beyond what's done here.
func completionActivateCompleted(this, operation uintptr) uintptr {
	h := handlerFromThis(this)
	h.mu.Lock()
	h.result = unsafe.Pointer(operation)
	h.mu.Unlock()
	h.doneOnce.Do(func() { close(h.done) })
	return 0 // S_OK
}

// activationTimeout bounds the wait on ActivateAudioInterfaceAsync's
// completion event (spec.md §9's open question: standardize on a bounded,
// not infinite, wait).
const activationTimeout = 3 * time.Second

// activateProcessLoopback requests a WASAPI client scoped to pid's process
// tree (spec.md §4.3 step 1) and returns the activated IAudioClient as a raw
// COM pointer (the caller wraps it with wca.IAudioClient).
func activateProcessLoopback(pid uint32) (*ole.IUnknown, error) {
	params := audioClientActivationParams{
		activationType: activationTypeProcessLoopback,
		targetPID:      pid,
		mode:           processLoopbackModeIncludeTargetProcessTree,
	}
	prop := blobPropVariant{
		vt:       vtBlob,
		blobSize: uint32(unsafe.Sizeof(params)),
		blobData: uintptr(unsafe.Pointer(&params)),
	}

	deviceID, err := syscall.UTF16PtrFromString(virtualAudioDeviceProcessLoopback)
	if err != nil {
		return nil, fmt.Errorf("activateProcessLoopback: encode device id: %w", err)
	}

	handler := newCompletionHandler()
	var asyncOp uintptr

	hr, _, _ := procActivateAudioInterfaceAsync.Call(
		uintptr(unsafe.Pointer(deviceID)),
		uintptr(unsafe.Pointer(ole.IID_IUnknown)),
		uintptr(unsafe.Pointer(&prop)),
		uintptr(unsafe.Pointer(&handler.vtbl)),
		uintptr(unsafe.Pointer(&asyncOp)),
	)
	if hr != 0 {
		return nil, fmt.Errorf("activateProcessLoopback: ActivateAudioInterfaceAsync returned 0x%x", uint32(hr))
	}

	select {
	case <-handler.done:
	case <-time.After(activationTimeout):
		return nil, fmt.Errorf("activateProcessLoopback: activation did not complete within %s", activationTimeout)
	}

	if handler.hr != 0 {
		return nil, fmt.Errorf("activateProcessLoopback: activation completed with error 0x%x", uint32(handler.hr))
	}
	if handler.result == nil {
		return nil, fmt.Errorf("activateProcessLoopback: activation completed with no result")
	}

	// IActivateAudioInterfaceAsyncOperation::GetActivateResult is the 4th
	// vtable slot, right after IUnknown's three; call it to retrieve the
	// IAudioClient pointer and the activation HRESULT.
	op := (*[8]uintptr)(unsafe.Pointer(handler.result))
	vtbl := (*[8]uintptr)(unsafe.Pointer(op[0]))
	getActivateResult := vtbl[3]

	var activateHR int32
	var iface uintptr
	syscall.SyscallN(getActivateResult, uintptr(handler.result),
		uintptr(unsafe.Pointer(&activateHR)), uintptr(unsafe.Pointer(&iface)))

	if activateHR != 0 {
		return nil, fmt.Errorf("activateProcessLoopback: GetActivateResult returned 0x%x", uint32(activateHR))
	}

	return (*ole.IUnknown)(unsafe.Pointer(iface)), nil
}
