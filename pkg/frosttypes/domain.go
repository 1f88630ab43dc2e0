// Data model for Frostlock: storage domains, snapshots and engine state
package frosttypes

import (
	"fmt"
	"path/filepath"
)

type DomainKind string

const (
	FrozenSystem DomainKind = "frozen_system" // OS + apps, discarded on restore
	FrozenConfig DomainKind = "frozen_config" // configs, selectively committable
	Persistent   DomainKind = "persistent"    // home directories, never reset
	Volatile     DomainKind = "volatile"      // temp files, always reset
)

type ResetPolicy string

const (
	DiscardOnBoot  ResetPolicy = "discard_on_boot"
	OptionalCommit ResetPolicy = "optional_commit"
	NeverReset     ResetPolicy = "never_reset"
	AlwaysReset    ResetPolicy = "always_reset"
)

// Domain is a named storage area with an independent persistence policy.
// The path is owned exclusively by the domain.
type Domain struct {
	ID          string      `json:"id"`
	Kind        DomainKind  `json:"kind"`
	Path        string      `json:"path"`
	ResetPolicy ResetPolicy `json:"reset_policy"`
	Tracked     bool        `json:"tracked"` // watched by the version control collaborator
}

// Frozen domains are the ones captured by snapshots and reset by restore.
func (d *Domain) Frozen() bool {
	return d.Kind == FrozenSystem || d.Kind == FrozenConfig
}

func (d *Domain) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: domain id empty", ErrConflict)
	}

	if !filepath.IsAbs(d.Path) {
		return fmt.Errorf("%w: domain %s path not absolute: %s", ErrConflict, d.ID, d.Path)
	}

	return nil
}
