//go:build !windows

package fsops

import (
	"fmt"
	"os"

	"github.com/frostlock/frostlock/pkg/frosttypes"
)

// CreateJunction redirects target to source. Last-resort approximation of
// freezing on platforms with neither overlay nor hardlink support: a symlink
// here, a directory junction on Windows.
func CreateJunction(source string, target string) error {
	if _, err := os.Stat(source); err != nil {
		return err
	}

	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%w: junction target already exists: %s", frosttypes.ErrConflict, target)
	}

	return os.Symlink(source, target)
}

// RemoveJunction removes only the redirection, never the pointed-to content.
func RemoveJunction(target string) error {
	fi, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if fi.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%w: %s is not a junction", frosttypes.ErrConflict, target)
	}

	return os.Remove(target)
}
