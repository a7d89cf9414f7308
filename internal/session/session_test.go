package session

import "testing"

func TestAmbientStableWithinSession(t *testing.T) {
	a := NewAmbient("cli")
	first := a.Current()
	second := a.Current()
	if first != second {
		t.Error("identity must be stable until Advance")
	}
	if first.IsZero() {
		t.Error("identity must not be zero")
	}
}

func TestAdvanceChangesIdentity(t *testing.T) {
	a := NewAmbient("cli")
	before := a.Current()
	after := a.Advance("cli")
	if before == after {
		t.Error("Advance must produce a new identity")
	}
	if after != a.Current() {
		t.Error("Advance must return the new current identity")
	}
}

func TestDistinctOriginsDistinctIdentities(t *testing.T) {
	// Same sequence and near-identical timestamps; the origin alone
	// should already separate the identities.
	a := derive(1, "alpha", 12345)
	b := derive(1, "beta", 12345)
	if a == b {
		t.Error("different origins must derive different identities")
	}
}

func TestDeriveIsPure(t *testing.T) {
	if derive(3, "x", 99) != derive(3, "x", 99) {
		t.Error("derivation must be deterministic over its inputs")
	}
}

func TestFixedSource(t *testing.T) {
	f := &Fixed{ID: derive(1, "test", 0)}
	if f.Current() != derive(1, "test", 0) {
		t.Error("fixed source must return the pinned identity")
	}
}
