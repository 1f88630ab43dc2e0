package fsops

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/function61/gokit/cryptorandombytes"
)

type Capabilities struct {
	Platform          string `json:"platform"`
	OverlaySupported  bool   `json:"overlay_supported"`
	HardlinkSupported bool   `json:"hardlink_supported"`
}

// Probe determines what the current OS / filesystem combination can do.
// Higher layers pick a strategy from this - overlay is never assumed.
// scratchDir must be writable and live on the filesystem whose hardlink
// support we care about (the snapshot storage root).
func Probe(scratchDir string) Capabilities {
	return Capabilities{
		Platform:          runtime.GOOS,
		OverlaySupported:  overlaySupported(),
		HardlinkSupported: hardlinkSupported(scratchDir),
	}
}

// there is no portable way to ask "can I hardlink here?" - so we just try
func hardlinkSupported(scratchDir string) bool {
	probe := filepath.Join(scratchDir, ".hardlink-probe-"+cryptorandombytes.Hex(4))
	link := probe + ".link"

	if err := os.WriteFile(probe, []byte("probe"), 0600); err != nil {
		return false
	}
	defer os.Remove(probe)

	if err := os.Link(probe, link); err != nil {
		return false
	}

	return os.Remove(link) == nil
}
