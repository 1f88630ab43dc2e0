package frosttypes

import (
	"time"
)

// Snapshot is an immutable capture of the frozen domains' contents at a point
// in time. DomainHashes never change after creation.
type Snapshot struct {
	ID           string            `json:"id"` // content-derived, hex, fixed length
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	DomainHashes map[string]string `json:"domain_hashes"` // domain id => tree digest
	StoragePath  string            `json:"storage_path"`
}

// EngineState is the process-wide mutable state: loaded once at startup,
// atomically write-replaced after every mutating operation.
type EngineState struct {
	DefaultSnapshotID string `json:"default_snapshot_id,omitempty"` // weak reference, resolved by lookup
	Frozen            bool   `json:"frozen"`
}

func NewEngineState() *EngineState {
	return &EngineState{Frozen: true}
}

// OverlayMount records one active overlay for a domain. UpperDir and WorkDir
// belong exclusively to the mount and are wiped on a clean unmount.
type OverlayMount struct {
	DomainID   string `json:"domain_id"`
	LowerDir   string `json:"lower_dir"` // read-only, snapshot-backed
	UpperDir   string `json:"upper_dir"` // writable scratch
	WorkDir    string `json:"work_dir"`  // filesystem-internal scratch
	MountPoint string `json:"mount_point"`
}
