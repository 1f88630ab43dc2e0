package frosttypes

import (
	"errors"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestFrozen(t *testing.T) {
	for _, tc := range []struct {
		kind   DomainKind
		frozen bool
	}{
		{FrozenSystem, true},
		{FrozenConfig, true},
		{Persistent, false},
		{Volatile, false},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			domain := Domain{ID: "x", Kind: tc.kind, Path: "/x"}
			assert.Assert(t, domain.Frozen() == tc.frozen)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.Ok(t, (&Domain{ID: "sys", Kind: FrozenSystem, Path: "/srv/sys"}).Validate())

	assert.Assert(t, errors.Is(
		(&Domain{Kind: FrozenSystem, Path: "/srv/sys"}).Validate(),
		ErrConflict))

	assert.Assert(t, errors.Is(
		(&Domain{ID: "sys", Kind: FrozenSystem, Path: "srv/sys"}).Validate(),
		ErrConflict))
}

func TestNewEngineState(t *testing.T) {
	state := NewEngineState()

	assert.Assert(t, state.Frozen)
	assert.EqualString(t, state.DefaultSnapshotID, "")
}
