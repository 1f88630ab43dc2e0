//go:build !linux

package fsops

// overlay mounts are a Linux-only primitive
func overlaySupported() bool {
	return false
}
