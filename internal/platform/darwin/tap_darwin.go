//go:build darwin

// Package darwin implements the two macOS capture engines of spec.md §4.4
// (aggregate-tap, this file) and §4.5 (content-sharing, sharing_darwin.go),
// plus the PID discovery helpers of §4.7. No Go binding for Core Audio's
// process-tap/aggregate-device API exists anywhere in the retrieval pack, so
// this file calls directly into CoreAudio/AudioToolbox via cgo, grounded on
// the cgo/AudioQueue shape used for microphone capture in the pack's sibling
// agent project.
package darwin

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreAudio -framework AudioToolbox -framework CoreFoundation -framework objc

#include <CoreAudio/CoreAudio.h>
#include <AudioToolbox/AudioToolbox.h>
#include <CoreFoundation/CoreFoundation.h>
#include <objc/runtime.h>
#include <objc/message.h>
#include <stdlib.h>
#include <string.h>

// CATapDescription (macOS 14.4+) is Objective-C only and not declared in
// any C header this file can safely assume is present on the build
// machine's SDK, so it is constructed through the Objective-C runtime
// instead of an #import.
static id ptap_makeTapDescription(AudioObjectID processID, int mono, const char *uuidString) {
    Class numberClass = objc_getClass("NSNumber");
    id number = ((id (*)(Class, SEL, unsigned int))objc_msgSend)(
        numberClass, sel_registerName("numberWithUnsignedInt:"), processID);

    Class arrayClass = objc_getClass("NSArray");
    id processArray = ((id (*)(Class, SEL, id))objc_msgSend)(
        arrayClass, sel_registerName("arrayWithObject:"), number);

    Class tapDescClass = objc_getClass("CATapDescription");
    id instance = ((id (*)(Class, SEL))objc_msgSend)(tapDescClass, sel_registerName("alloc"));

    SEL initSel = mono
        ? sel_registerName("initMonoMixdownOfProcesses:")
        : sel_registerName("initStereoMixdownOfProcesses:");
    id tapDesc = ((id (*)(id, SEL, id))objc_msgSend)(instance, initSel, processArray);

    Class nsStringClass = objc_getClass("NSString");
    id nsUUIDStr = ((id (*)(Class, SEL, const char *))objc_msgSend)(
        nsStringClass, sel_registerName("stringWithUTF8String:"), uuidString);

    Class nsuuidClass = objc_getClass("NSUUID");
    id uuidAlloc = ((id (*)(Class, SEL))objc_msgSend)(nsuuidClass, sel_registerName("alloc"));
    id nsuuid = ((id (*)(id, SEL, id))objc_msgSend)(uuidAlloc, sel_registerName("initWithUUIDString:"), nsUUIDStr);

    ((void (*)(id, SEL, id))objc_msgSend)(tapDesc, sel_registerName("setUUID:"), nsuuid);

    return tapDesc;
}

// ptap_translatePIDToObjectID maps a pid to its Core Audio process object
// (spec.md §4.4 step 2); returns 0 when the process has no audio object.
static AudioObjectID ptap_translatePIDToObjectID(pid_t pid) {
    AudioObjectPropertyAddress addr = {
        kAudioHardwarePropertyTranslatePIDToProcessObject,
        kAudioObjectPropertyScopeGlobal,
        kAudioObjectPropertyElementMain,
    };
    AudioObjectID objectID = 0;
    UInt32 dataSize = sizeof(objectID);
    OSStatus status = AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr, sizeof(pid), &pid, &dataSize, &objectID);
    if (status != noErr) {
        return 0;
    }
    return objectID;
}

// ptap_createProcessTap wraps AudioHardwareCreateProcessTap (step 3-4).
static OSStatus ptap_createProcessTap(AudioObjectID processID, int mono, const char *uuidString, AudioObjectID *outTapID) {
    id tapDesc = ptap_makeTapDescription(processID, mono, uuidString);
    return AudioHardwareCreateProcessTap(tapDesc, outTapID);
}

// ptap_readTapFormat reads the tap's AudioStreamBasicDescription (step 5);
// this read must happen before the aggregate device is created or it will
// deliver no data.
static OSStatus ptap_readTapFormat(AudioObjectID tapID, double *sampleRate, UInt32 *channels, UInt32 *bitsPerChannel) {
    AudioObjectPropertyAddress addr = {
        kAudioTapPropertyFormat,
        kAudioObjectPropertyScopeGlobal,
        kAudioObjectPropertyElementMain,
    };
    AudioStreamBasicDescription asbd;
    memset(&asbd, 0, sizeof(asbd));
    UInt32 dataSize = sizeof(asbd);
    OSStatus status = AudioObjectGetPropertyData(tapID, &addr, 0, NULL, &dataSize, &asbd);
    if (status != noErr) {
        return status;
    }
    *sampleRate = asbd.mSampleRate;
    *channels = asbd.mChannelsPerFrame;
    *bitsPerChannel = asbd.mBitsPerChannel;
    return noErr;
}

// ptap_defaultOutputDeviceUID resolves the live default output device UID
// (step 6). The hardcoded "BuiltInSpeakerDevice" some experimental branches
// used must never appear here.
static OSStatus ptap_defaultOutputDeviceUID(char *buf, int bufLen) {
    AudioObjectPropertyAddress devAddr = {
        kAudioHardwarePropertyDefaultSystemOutputDevice,
        kAudioObjectPropertyScopeGlobal,
        kAudioObjectPropertyElementMain,
    };
    AudioObjectID deviceID = 0;
    UInt32 deviceIDSize = sizeof(deviceID);
    OSStatus status = AudioObjectGetPropertyData(kAudioObjectSystemObject, &devAddr, 0, NULL, &deviceIDSize, &deviceID);
    if (status != noErr) {
        return status;
    }

    AudioObjectPropertyAddress uidAddr = {
        kAudioDevicePropertyDeviceUID,
        kAudioObjectPropertyScopeGlobal,
        kAudioObjectPropertyElementMain,
    };
    CFStringRef uid = NULL;
    UInt32 uidSize = sizeof(uid);
    status = AudioObjectGetPropertyData(deviceID, &uidAddr, 0, NULL, &uidSize, &uid);
    if (status != noErr) {
        return status;
    }
    Boolean ok = CFStringGetCString(uid, buf, bufLen, kCFStringEncodingUTF8);
    CFRelease(uid);
    return ok ? noErr : -1;
}

// ptap_createAggregateDevice builds the dictionary spec.md §4.4 step 7
// requires and calls the C entry point directly (the bridged/high-level
// form does not accept this dictionary layout on any macOS release to date).
static OSStatus ptap_createAggregateDevice(
    const char *aggregateUID,
    const char *aggregateName,
    const char *outputDeviceUID,
    const char *tapUUID,
    AudioObjectID *outDeviceID
) {
    CFStringRef cfName = CFStringCreateWithCString(NULL, aggregateName, kCFStringEncodingUTF8);
    CFStringRef cfUID = CFStringCreateWithCString(NULL, aggregateUID, kCFStringEncodingUTF8);
    CFStringRef cfOutputUID = CFStringCreateWithCString(NULL, outputDeviceUID, kCFStringEncodingUTF8);
    CFStringRef cfTapUUID = CFStringCreateWithCString(NULL, tapUUID, kCFStringEncodingUTF8);

    CFMutableDictionaryRef subDevice = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    CFDictionarySetValue(subDevice, CFSTR("uid"), cfOutputUID);
    const void *subDevices[1] = { subDevice };
    CFArrayRef subDeviceList = CFArrayCreate(NULL, subDevices, 1, &kCFTypeArrayCallBacks);

    CFMutableDictionaryRef tapEntry = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    CFDictionarySetValue(tapEntry, CFSTR("uid"), cfTapUUID);
    CFDictionarySetValue(tapEntry, CFSTR("drift"), kCFBooleanTrue);
    const void *taps[1] = { tapEntry };
    CFArrayRef tapList = CFArrayCreate(NULL, taps, 1, &kCFTypeArrayCallBacks);

    CFMutableDictionaryRef description = CFDictionaryCreateMutable(NULL, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    CFDictionarySetValue(description, CFSTR("name"), cfName);
    CFDictionarySetValue(description, CFSTR("uid"), cfUID);
    CFDictionarySetValue(description, CFSTR("master"), cfOutputUID);
    CFDictionarySetValue(description, CFSTR("private"), kCFBooleanTrue);
    CFDictionarySetValue(description, CFSTR("stacked"), kCFBooleanFalse);
    CFDictionarySetValue(description, CFSTR("tapautostart"), kCFBooleanTrue);
    CFDictionarySetValue(description, CFSTR("subdevices"), subDeviceList);
    CFDictionarySetValue(description, CFSTR("taps"), tapList);

    OSStatus status = AudioHardwareCreateAggregateDevice(description, outDeviceID);

    CFRelease(subDevice);
    CFRelease(subDeviceList);
    CFRelease(tapEntry);
    CFRelease(tapList);
    CFRelease(description);
    CFRelease(cfName);
    CFRelease(cfUID);
    CFRelease(cfOutputUID);
    CFRelease(cfTapUUID);

    return status;
}

// Forward declaration of the Go callback invoked per buffer.
extern void ptapGoIOCallback(AudioObjectID deviceID, const void *data, int size);

static OSStatus ptap_ioProc(
    AudioObjectID inDevice,
    const AudioTimeStamp *inNow,
    const AudioBufferList *inInputData,
    const AudioTimeStamp *inInputTime,
    AudioBufferList *outOutputData,
    const AudioTimeStamp *inOutputTime,
    void *inClientData
) {
    if (inInputData == NULL || inInputData->mNumberBuffers == 0) {
        return noErr;
    }
    const AudioBuffer *buf = &inInputData->mBuffers[0];
    if (buf->mData != NULL && buf->mDataByteSize > 0) {
        ptapGoIOCallback(inDevice, buf->mData, (int)buf->mDataByteSize);
    }
    return noErr;
}

static OSStatus ptap_installIOProc(AudioObjectID deviceID, AudioDeviceIOProcID *outProcID) {
    return AudioDeviceCreateIOProcID(deviceID, ptap_ioProc, NULL, outProcID);
}

static OSStatus ptap_startDevice(AudioObjectID deviceID, AudioDeviceIOProcID procID) {
    return AudioDeviceStart(deviceID, procID);
}

static OSStatus ptap_stopDevice(AudioObjectID deviceID, AudioDeviceIOProcID procID) {
    return AudioDeviceStop(deviceID, procID);
}

static OSStatus ptap_destroyIOProc(AudioObjectID deviceID, AudioDeviceIOProcID procID) {
    return AudioDeviceDestroyIOProcID(deviceID, procID);
}

static OSStatus ptap_destroyAggregateDevice(AudioObjectID deviceID) {
    return AudioHardwareDestroyAggregateDevice(deviceID);
}

static OSStatus ptap_destroyProcessTap(AudioObjectID tapID) {
    return AudioHardwareDestroyProcessTap(tapID);
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/ringbuf"
)

// tapRingCapacityBytes sizes the hand-off buffer for roughly 500ms at a
// typical tap format (48kHz stereo float32).
const tapRingCapacityBytes = 48000 * 2 * 4 / 2

// TapEngine is the macOS aggregate-tap backend of spec.md §4.4.
type TapEngine struct {
	pid         int
	monoMixdown bool

	mu              sync.Mutex
	processObjectID C.AudioObjectID
	tapID           C.AudioObjectID
	aggregateID     C.AudioObjectID
	ioProcID        C.AudioDeviceIOProcID
	haveTap         bool
	haveAggregate   bool
	haveIOProc      bool
	started         bool
	native          proctap.AudioFormat

	ring *ringbuf.RingBuffer
}

var (
	tapEngineRegistry   = map[C.AudioObjectID]*TapEngine{}
	tapEngineRegistryMu sync.Mutex
)

// NewTapEngine constructs a macOS aggregate-tap engine for pid. channels
// selects mono or stereo mixdown (spec.md §4.4 step 3); any value other than
// 1 requests stereo.
func NewTapEngine(pid int, channels int) *TapEngine {
	return &TapEngine{pid: pid, monoMixdown: channels == 1}
}

// SupportsProcessTap reports whether the host macOS version is >= 14.4, the
// minimum for the process-tap API (spec.md §4.4 step 1).
func SupportsProcessTap() bool {
	major, minor, _ := macOSVersion()
	return major > 14 || (major == 14 && minor >= 4)
}

func (e *TapEngine) Start(ctx context.Context) (err error) {
	if !SupportsProcessTap() {
		return &proctap.Error{Op: "darwin.TapEngine.Start", Kind: proctap.KindUnsupportedPlatform,
			Message: "process tap requires macOS 14.4 or later"}
	}
	if err := checkAudioInputAuthorization("darwin.TapEngine.Start"); err != nil {
		return err
	}

	objID := C.ptap_translatePIDToObjectID(C.pid_t(e.pid))
	if objID == 0 {
		return &proctap.Error{Op: "darwin.TapEngine.Start", Kind: proctap.KindNoAudio,
			Message: fmt.Sprintf("pid %d has no Core Audio process object", e.pid)}
	}
	e.processObjectID = objID

	defer func() {
		if err != nil {
			e.unwind()
		}
	}()

	tapUUID := uuid.New().String()
	cTapUUID := C.CString(tapUUID)
	defer C.free(unsafe.Pointer(cTapUUID))

	mono := C.int(0)
	if e.monoMixdown {
		mono = 1
	}
	var tapID C.AudioObjectID
	if status := C.ptap_createProcessTap(objID, mono, cTapUUID, &tapID); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("AudioHardwareCreateProcessTap failed"))
	}
	e.tapID = tapID
	e.haveTap = true

	var sampleRate C.double
	var channels, bitsPerChannel C.UInt32
	if status := C.ptap_readTapFormat(tapID, &sampleRate, &channels, &bitsPerChannel); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("reading tap format failed"))
	}

	outputUIDBuf := make([]byte, 256)
	if status := C.ptap_defaultOutputDeviceUID((*C.char)(unsafe.Pointer(&outputUIDBuf[0])), C.int(len(outputUIDBuf))); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("resolving default output device UID failed"))
	}
	outputUID := cStringFromBuf(outputUIDBuf)

	aggregateUUID := uuid.New().String()
	aggregateName := fmt.Sprintf("proctap-%d", e.pid)
	cAggUID := C.CString(aggregateUUID)
	cAggName := C.CString(aggregateName)
	cOutputUID := C.CString(outputUID)
	defer C.free(unsafe.Pointer(cAggUID))
	defer C.free(unsafe.Pointer(cAggName))
	defer C.free(unsafe.Pointer(cOutputUID))

	var aggID C.AudioObjectID
	if status := C.ptap_createAggregateDevice(cAggUID, cAggName, cOutputUID, cTapUUID, &aggID); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("AudioHardwareCreateAggregateDevice failed"))
	}
	e.aggregateID = aggID
	e.haveAggregate = true

	var procID C.AudioDeviceIOProcID
	if status := C.ptap_installIOProc(aggID, &procID); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("AudioDeviceCreateIOProcID failed"))
	}
	e.ioProcID = procID
	e.haveIOProc = true

	channelCount := int(channels)
	if channelCount == 0 {
		channelCount = 2
	}
	e.native = proctap.AudioFormat{
		SampleRateHz: int(sampleRate),
		Channels:     channelCount,
		Encoding:     encodingFromBits(int(bitsPerChannel)),
	}
	e.ring = ringbuf.New(tapRingCapacityBytes, e.native.BytesPerFrame())

	tapEngineRegistryMu.Lock()
	tapEngineRegistry[aggID] = e
	tapEngineRegistryMu.Unlock()

	if status := C.ptap_startDevice(aggID, procID); status != 0 {
		return proctap.NewPlatformError("darwin.TapEngine.Start", int32(status), fmt.Errorf("AudioDeviceStart failed"))
	}
	e.started = true

	log.Debug("process tap started", "pid", e.pid, "native", e.native)
	return nil
}

//export ptapGoIOCallback
func ptapGoIOCallback(deviceID C.AudioObjectID, data unsafe.Pointer, size C.int) {
	tapEngineRegistryMu.Lock()
	e := tapEngineRegistry[deviceID]
	tapEngineRegistryMu.Unlock()
	if e == nil || e.ring == nil {
		return
	}
	e.ring.Push(C.GoBytes(data, size))
}

func (e *TapEngine) Read(maxBytes int) []byte {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return nil
	}
	return ring.Pop(maxBytes)
}

func (e *TapEngine) NativeFormat() proctap.AudioFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.native
}

func (e *TapEngine) Overflowing() time.Duration {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.OverflowDuration()
}

// Stop unwinds every resource Start acquired, in the order spec.md §4.4
// mandates: stop device -> destroy IOProc -> destroy aggregate device ->
// destroy process tap, attempting every step even if an earlier one failed.
func (e *TapEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started && !e.haveTap && !e.haveAggregate && !e.haveIOProc {
		return nil
	}
	e.unwindLocked()
	log.Debug("process tap stopped", "pid", e.pid)
	return nil
}

func (e *TapEngine) unwind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unwindLocked()
}

func (e *TapEngine) unwindLocked() {
	if e.started && e.haveAggregate && e.haveIOProc {
		C.ptap_stopDevice(e.aggregateID, e.ioProcID)
	}
	e.started = false

	if e.haveAggregate && e.haveIOProc {
		C.ptap_destroyIOProc(e.aggregateID, e.ioProcID)
	}
	e.haveIOProc = false

	if e.haveAggregate {
		tapEngineRegistryMu.Lock()
		delete(tapEngineRegistry, e.aggregateID)
		tapEngineRegistryMu.Unlock()
		C.ptap_destroyAggregateDevice(e.aggregateID)
	}
	e.haveAggregate = false

	if e.haveTap {
		C.ptap_destroyProcessTap(e.tapID)
	}
	e.haveTap = false
}

func encodingFromBits(bits int) proctap.SampleEncoding {
	switch bits {
	case 16:
		return proctap.EncodingInt16
	case 24:
		return proctap.EncodingInt24Packed
	case 32:
		return proctap.EncodingFloat32
	default:
		return proctap.EncodingFloat32
	}
}

func cStringFromBuf(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
