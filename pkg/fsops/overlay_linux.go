//go:build linux

// must exclude from Windows build due to syscall.Mount(), syscall.Unmount()

package fsops

import (
	"fmt"
	"syscall"

	"github.com/prometheus/procfs"
)

func overlayMount(lower string, upper string, work string, mountPoint string) error {
	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lower, upper, work)

	return syscall.Mount("overlay", mountPoint, "overlay", 0, options)
}

func overlayUnmount(mountPoint string) error {
	return syscall.Unmount(mountPoint, 0)
}

// asks the kernel, not our records - records can outlive a reboot
func overlayMountedAt(mountPoint string) (bool, error) {
	procSelf, err := procfs.Self()
	if err != nil {
		return false, err
	}

	mounts, err := procSelf.MountStats()
	if err != nil {
		return false, err
	}

	for _, mount := range mounts {
		if mount.Mount == mountPoint && mount.Type == "overlay" {
			return true, nil
		}
	}

	return false, nil
}
