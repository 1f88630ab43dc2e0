//go:build windows

package fsops

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/frostlock/frostlock/pkg/frosttypes"
)

func CreateJunction(source string, target string) error {
	if _, err := os.Stat(source); err != nil {
		return err
	}

	if _, err := os.Lstat(target); err == nil {
		return fmt.Errorf("%w: junction target already exists: %s", frosttypes.ErrConflict, target)
	}

	output, err := exec.Command("cmd", "/c", "mklink", "/J", target, source).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mklink /J failed: %v, output: %s", err, output)
	}

	return nil
}

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

	// rmdir on a junction removes the reparse point only, not the content
	output, err := exec.Command("cmd", "/c", "rmdir", target).CombinedOutput()
	if err != nil {
		return fmt.Errorf("rmdir failed: %v, output: %s", err, output)
	}

	return nil
}
