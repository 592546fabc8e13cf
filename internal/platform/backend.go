// Package platform defines the capture-engine capability every OS-specific
// backend implements, and dispatches pid-based capture to the concrete
// backend for the running host (spec.md §4's "platform capture backend" and
// §9's "dynamic dispatch" design note).
package platform

import (
	"context"
	"time"

	"github.com/ColonelBlimp/proctap"
)

// Backend is the capability trait spec.md §9 calls for: start, stop, read,
// and a native-format probe. Concrete backends are Windows WASAPI loopback,
// macOS aggregate-tap, and macOS content-sharing.
type Backend interface {
	// Start opens the capture session. On any failure it must unwind every
	// resource it had already acquired before returning.
	Start(ctx context.Context) error

	// Stop releases every resource Start acquired, in reverse order,
	// attempting every release step even if an earlier one fails. Idempotent.
	Stop() error

	// Read pops up to maxBytes of native-format audio accumulated since the
	// last call. Returns an empty (possibly nil) slice when nothing is
	// available; never blocks.
	Read(maxBytes int) []byte

	// NativeFormat reports the format the backend actually delivers, valid
	// once Start has returned successfully.
	NativeFormat() proctap.AudioFormat

	// Overflowing reports how long the backend's hand-off buffer has been
	// continuously dropping frames, or zero if it currently isn't (spec.md
	// §7's resource-exhausted kind).
	Overflowing() time.Duration
}

// PID identifies the process to capture. Validation (positive, plausible)
// happens where the caller supplies it; backends treat it as opaque.
type PID = int
