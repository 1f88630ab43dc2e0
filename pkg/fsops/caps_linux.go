//go:build linux

package fsops

import (
	"os"
	"os/exec"
	"strings"
)

// overlay needs root (mount syscall) and kernel support. The filesystem may
// be built-in (listed in /proc/filesystems) or available as a module.
func overlaySupported() bool {
	if os.Geteuid() != 0 {
		return false
	}

	if kernelKnowsOverlay() {
		return true
	}

	// dry-run: would the module load?
	return exec.Command("modprobe", "-n", "-q", "overlay").Run() == nil
}

func kernelKnowsOverlay() bool {
	filesystems, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(filesystems), "\n") {
		if strings.TrimSpace(strings.TrimPrefix(line, "nodev")) == "overlay" {
			return true
		}
	}

	return false
}
