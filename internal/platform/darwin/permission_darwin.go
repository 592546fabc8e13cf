//go:build darwin

package darwin

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework AVFoundation -framework CoreFoundation -framework objc

#include <objc/runtime.h>
#include <objc/message.h>
#include <stdlib.h>

// AVAuthorizationStatus values (AVCaptureDevice.h), duplicated here so this
// file does not need to pull in the AVFoundation umbrella header just for
// four integers.
enum {
    permNotDetermined = 0,
    permRestricted    = 1,
    permDenied        = 2,
    permAuthorized    = 3,
};

static long avAuthorizationStatusForAudio(void) {
    Class cls = objc_getClass("AVCaptureDevice");
    Class nsStringClass = objc_getClass("NSString");
    id mediaType = ((id (*)(Class, SEL, const char *))objc_msgSend)(
        nsStringClass, sel_registerName("stringWithUTF8String:"), "soun");
    SEL sel = sel_registerName("authorizationStatusForMediaType:");
    long status = ((long (*)(Class, SEL, id))objc_msgSend)(cls, sel, mediaType);
    return status;
}

static void avOpenPrivacyPane(void) {
    Class workspaceClass = objc_getClass("NSWorkspace");
    id shared = ((id (*)(Class, SEL))objc_msgSend)(workspaceClass, sel_registerName("sharedWorkspace"));
    Class nsStringClass = objc_getClass("NSString");
    id urlString = ((id (*)(Class, SEL, const char *))objc_msgSend)(
        nsStringClass, sel_registerName("stringWithUTF8String:"),
        "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone");
    Class nsurlClass = objc_getClass("NSURL");
    id url = ((id (*)(Class, SEL, id))objc_msgSend)(nsurlClass, sel_registerName("URLWithString:"), urlString);
    ((void (*)(id, SEL, id))objc_msgSend)(shared, sel_registerName("openURL:"), url);
}
*/
import "C"

import "github.com/ColonelBlimp/proctap"

// AuthorizationStatus mirrors AVAuthorizationStatus for the audio-input
// permission check spec.md §4.7 requires before capture.
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationRestricted
	AuthorizationDenied
	AuthorizationAuthorized
)

// ProbeAudioInputAuthorization reports the current audio-input permission
// state without prompting.
func ProbeAudioInputAuthorization() AuthorizationStatus {
	return AuthorizationStatus(C.avAuthorizationStatusForAudio())
}

// OpenPrivacyPane opens System Settings to the microphone privacy pane, for
// callers that want to direct the user there after a denial (spec.md §4.7:
// "optionally ... open the system privacy pane").
func OpenPrivacyPane() {
	C.avOpenPrivacyPane()
}

// checkAudioInputAuthorization probes the current authorization state and
// returns a KindPermissionDenied error if capture is not permitted (spec.md
// §4.7's "probe authorization, gate capture" responsibility). Callers run
// this before touching any Core Audio object for the target process.
func checkAudioInputAuthorization(op string) error {
	switch ProbeAudioInputAuthorization() {
	case AuthorizationDenied, AuthorizationRestricted:
		return &proctap.Error{Op: op, Kind: proctap.KindPermissionDenied,
			Message: "audio input authorization denied"}
	default:
		return nil
	}
}
