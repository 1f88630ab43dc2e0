//go:build !linux

package fsops

import (
	"fmt"

	"github.com/frostlock/frostlock/pkg/frosttypes"
)

// these are unreachable in practice: OverlayManager gates on the capability
// probe, which never reports overlay support off Linux

func overlayMount(lower string, upper string, work string, mountPoint string) error {
	return fmt.Errorf("%w: overlay mount", frosttypes.ErrUnsupported)
}

func overlayUnmount(mountPoint string) error {
	return fmt.Errorf("%w: overlay unmount", frosttypes.ErrUnsupported)
}

func overlayMountedAt(mountPoint string) (bool, error) {
	return false, nil
}
