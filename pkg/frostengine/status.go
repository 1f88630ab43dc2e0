package frostengine

import (
	"os"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/frostlock/frostlock/pkg/fsops"
	"github.com/frostlock/frostlock/pkg/gitversioning"
	"github.com/samber/lo"
)

type DomainStatus struct {
	ID            string                 `json:"id"`
	Kind          frosttypes.DomainKind  `json:"kind"`
	ResetPolicy   frosttypes.ResetPolicy `json:"reset_policy"`
	Path          string                 `json:"path"`
	Exists        bool                   `json:"exists"`
	Tracked       bool                   `json:"tracked"`
	DiskUsage     uint64                 `json:"disk_usage"`
	OverlayActive bool                   `json:"overlay_active"`
}

type Status struct {
	BasePath       string                           `json:"base_path"`
	Capabilities   fsops.Capabilities               `json:"capabilities"`
	Frozen         bool                             `json:"frozen"`
	Domains        []DomainStatus                   `json:"domains"`
	SnapshotCount  int                              `json:"snapshot_count"`
	Default        *frosttypes.Snapshot             `json:"default_snapshot,omitempty"`
	Latest         *frosttypes.Snapshot             `json:"latest_snapshot,omitempty"`
	VersionControl map[string]*gitversioning.Status `json:"version_control"`
}

// Status assembles a read-only view of everything: domains, snapshots,
// capabilities, version control. Never mutates storage.
func (e *Engine) Status() *Status {
	snapshots := e.Snapshots.List()

	status := &Status{
		BasePath:      e.baseDir,
		Capabilities:  e.Caps,
		Frozen:        e.state.Frozen,
		SnapshotCount: len(snapshots),
		Default:       e.DefaultSnapshot(),
		Domains: lo.Map(e.Domains.All(), func(domain frosttypes.Domain, _ int) DomainStatus {
			return e.domainStatus(domain)
		}),
		VersionControl: map[string]*gitversioning.Status{},
	}

	if len(snapshots) > 0 {
		status.Latest = &snapshots[len(snapshots)-1]
	}

	for _, domain := range e.Domains.Tracked() {
		vcStatus, err := gitversioning.NewRepository(domain.Path, e.logger).GetStatus()
		if err != nil {
			e.logl.Error.Printf("version control status for %s: %v", domain.ID, err)
			vcStatus = &gitversioning.Status{Initialized: false}
		}

		status.VersionControl[domain.ID] = vcStatus
	}

	return status
}

func (e *Engine) domainStatus(domain frosttypes.Domain) DomainStatus {
	exists := false
	var usage uint64

	if _, err := os.Stat(domain.Path); err == nil {
		exists = true

		if diskUsage, err := fsops.DiskUsage(domain.Path); err == nil {
			usage = diskUsage
		}
	}

	return DomainStatus{
		ID:            domain.ID,
		Kind:          domain.Kind,
		ResetPolicy:   domain.ResetPolicy,
		Path:          domain.Path,
		Exists:        exists,
		Tracked:       domain.Tracked,
		DiskUsage:     usage,
		OverlayActive: e.Overlays.ActiveForDomain(domain.ID) != nil,
	}
}
