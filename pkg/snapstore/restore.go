package snapstore

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/frostlock/frostlock/pkg/fsops"
	"github.com/samber/lo"
)

const (
	MethodOverlay  = "overlay"  // lower-layer swap, no data movement
	MethodJunction = "junction" // redirection re-point, no data movement
	MethodRelink   = "relink"   // wipe + hardlink duplication
)

type DomainRestoreResult struct {
	DomainID string
	Method   string
	Stats    *fsops.DuplicateStats // nil for the overlay method
	Err      error
}

// Restore moves each target domain captured by the snapshot back to its
// captured content. Domains absent from the snapshot are left untouched.
// NOT atomic across domains: each domain is restored independently and a
// failure on one never rolls back or aborts its siblings - inspect the
// per-domain results.
func (s *Store) Restore(snapshot *frosttypes.Snapshot, targetDomains []frosttypes.Domain, overlays *fsops.OverlayManager) []DomainRestoreResult {
	results := []DomainRestoreResult{}

	for _, domain := range targetDomains {
		if _, captured := snapshot.DomainHashes[domain.ID]; !captured {
			continue
		}

		result := s.restoreDomain(snapshot, domain, overlays)

		if result.Err != nil {
			s.logl.Error.Printf("restore domain %s: %v", domain.ID, result.Err)
		} else {
			s.logl.Info.Printf("restored domain %s (%s)", domain.ID, result.Method)
		}

		results = append(results, result)
	}

	return results
}

func (s *Store) restoreDomain(snapshot *frosttypes.Snapshot, domain frosttypes.Domain, overlays *fsops.OverlayManager) DomainRestoreResult {
	storedTree := filepath.Join(snapshot.StoragePath, domain.ID)

	if overlays != nil {
		if active := overlays.ActiveForDomain(domain.ID); active != nil {
			// fast path: discard the scratch layer, swap in the snapshot's
			// storage as the new read-only lower. O(1) in tree size.
			if err := overlays.Unmount(active.MountPoint, true); err != nil {
				return DomainRestoreResult{DomainID: domain.ID, Method: MethodOverlay, Err: err}
			}

			remount := *active
			remount.LowerDir = storedTree

			return DomainRestoreResult{
				DomainID: domain.ID,
				Method:   MethodOverlay,
				Err:      overlays.Mount(remount),
			}
		}
	}

	if fi, err := os.Lstat(domain.Path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		// the domain lives behind a junction (platforms without overlay
		// support): re-point the redirection at the captured tree instead of
		// wiping through it. O(1) in tree size, like the overlay swap.
		if err := fsops.RemoveJunction(domain.Path); err != nil {
			return DomainRestoreResult{DomainID: domain.ID, Method: MethodJunction, Err: err}
		}

		return DomainRestoreResult{
			DomainID: domain.ID,
			Method:   MethodJunction,
			Err:      fsops.CreateJunction(storedTree, domain.Path),
		}
	}

	if err := fsops.RemoveTree(domain.Path); err != nil {
		return DomainRestoreResult{DomainID: domain.ID, Method: MethodRelink, Err: err}
	}

	stats, err := fsops.DuplicateTree(storedTree, domain.Path, nil, s.logger)

	return DomainRestoreResult{
		DomainID: domain.ID,
		Method:   MethodRelink,
		Stats:    stats,
		Err:      err,
	}
}

func sortedDomainIDs(snapshot *frosttypes.Snapshot) []string {
	domainIDs := lo.Keys(snapshot.DomainHashes)
	sort.Strings(domainIDs)

	return domainIDs
}
