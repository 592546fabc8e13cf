//go:build darwin

package darwin

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// macOSVersion returns the host's (major, minor, patch) product version via
// the kern.osproductversion sysctl, e.g. (14, 4, 1) for Sonoma 14.4.1. It
// returns zeros if the sysctl is unavailable.
func macOSVersion() (major, minor, patch int) {
	s, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return 0, 0, 0
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		patch, _ = strconv.Atoi(parts[2])
	}
	return major, minor, patch
}

// SupportsContentSharing reports whether the host is macOS 13 or later, the
// minimum for the content-sharing capture path (spec.md §4.5).
func SupportsContentSharing() bool {
	major, _, _ := macOSVersion()
	return major >= 13
}
