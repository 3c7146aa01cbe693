package validator

import (
	"testing"

	"trinci-core/chain"
)

func key(b byte) chain.PublicKey { return chain.PublicKey{b} }

func TestNewSetSeedsInitialMembers(t *testing.T) {
	a, b := key(1), key(2)
	s := NewSet(a, b)

	if !s.IsValidator(a) || !s.IsValidator(b) {
		t.Fatalf("expected both seeded keys to be validators")
	}
	if s.IsValidator(key(3)) {
		t.Fatalf("did not expect an unseeded key to be a validator")
	}
}

func TestAddAndRemove(t *testing.T) {
	s := NewSet()
	a := key(1)

	if s.IsValidator(a) {
		t.Fatalf("expected an empty set to reject every key")
	}
	s.Add(a)
	if !s.IsValidator(a) {
		t.Fatalf("expected the added key to be a validator")
	}
	s.Remove(a)
	if s.IsValidator(a) {
		t.Fatalf("expected the removed key to no longer be a validator")
	}
}

func TestSetImplementsPredicate(t *testing.T) {
	var _ Predicate = NewSet()
}
