//go:build darwin

package darwin

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// BundleIDForPID resolves a process's application bundle identifier
// (spec.md §4.7): first via lsappinfo, falling back to a heuristic over the
// process image path for command-line-launched apps. Returns an error if
// neither yields a bundle.
func BundleIDForPID(pid int) (string, error) {
	if id, ok := bundleIDViaLSAppInfo(pid); ok {
		return id, nil
	}
	if id, ok := bundleIDViaProcessImagePath(pid); ok {
		return id, nil
	}
	return "", fmt.Errorf("no bundle id found for pid %d", pid)
}

func bundleIDViaLSAppInfo(pid int) (string, bool) {
	out, err := exec.Command("lsappinfo", "info", "-only", "bundleid", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(out))

	if idx := strings.Index(line, `"CFBundleIdentifier"=`); idx >= 0 {
		v := strings.Trim(line[idx+len(`"CFBundleIdentifier"=`):], `"`)
		if v != "" && v != "NULL" {
			return v, true
		}
	}
	if idx := strings.Index(line, "bundleid="); idx >= 0 {
		v := strings.Trim(line[idx+len("bundleid="):], `"`)
		if v != "" && v != "NULL" {
			return v, true
		}
	}
	return "", false
}

// bundleIDViaProcessImagePath is a heuristic fallback for processes
// lsappinfo doesn't recognize: it infers a bundle-style identifier from the
// executable's path when it sits inside a .app bundle. This is a best-effort
// guess, not an authoritative lookup (spec.md §4.7 explicitly calls this a
// heuristic).
func bundleIDViaProcessImagePath(pid int) (string, bool) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "comm=").Output()
	if err != nil {
		return "", false
	}
	comm := strings.TrimSpace(string(out))
	const marker = ".app/"
	idx := strings.Index(comm, marker)
	if idx < 0 {
		return "", false
	}
	withoutSuffix := comm[:idx]
	slash := strings.LastIndex(withoutSuffix, "/")
	appName := withoutSuffix
	if slash >= 0 {
		appName = withoutSuffix[slash+1:]
	}
	if appName == "" {
		return "", false
	}
	return "com.apple." + appName, true
}
