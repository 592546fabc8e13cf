//go:build darwin

package platform

import (
	"github.com/ColonelBlimp/proctap"
	"github.com/ColonelBlimp/proctap/internal/platform/darwin"
)

// Select returns the macOS backend, preferring content-sharing (macOS 13+)
// and falling back to the aggregate-tap engine (macOS 14.4+), per spec.md
// §4.6's platform-dependent backend ordering.
func Select(pid int, target proctap.AudioFormat) (Backend, error) {
	return darwin.NewPreferredBackend(pid, target), nil
}
