//go:build !windows && !darwin

package platform

import "github.com/ColonelBlimp/proctap"

// Select always fails: no backend in this spec targets any platform besides
// Windows and macOS (spec.md §1 explicitly leaves Linux unimplemented).
func Select(pid int, target proctap.AudioFormat) (Backend, error) {
	return nil, &proctap.Error{Op: "platform.Select", Kind: proctap.KindUnsupportedPlatform,
		Message: "no capture backend is implemented for this platform"}
}
