//go:build windows

package platform

import (
	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/platform/windows"
)

// Select returns the Windows WASAPI process-loopback engine; it is the only
// backend available on this platform (spec.md §4.6). target is unused here:
// the loopback engine always reports its own native format.
func Select(pid int, target proctap.AudioFormat) (Backend, error) {
	return windows.New(pid), nil
}
