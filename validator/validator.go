// Package validator implements the pluggable leader-validator check
// spec §1 carves out of scope ("consensus beyond a pluggable
// leader-validator check") and spec §3/§4.5 require at the boundary:
// "any later block must be signed by a validator whose identity
// satisfies the injected is-validator predicate". Grounded on the
// teacher's authority-role admission set (core/authority_nodes.go), cut
// down to the one fact the core engine actually needs: is this caller,
// right now, allowed to produce a block.
package validator

import (
	"sync"

	"trinci-core/chain"
)

// Predicate is the injected is-validator check (spec §4.5 step 5).
type Predicate interface {
	IsValidator(pub chain.PublicKey) bool
}

// Set is a simple concurrency-safe validator identity set, the default
// Predicate implementation: membership is the whole "consensus" the
// core engine performs — anything richer (stake weighting, rotation,
// elections) is out of scope per spec §1 and lives outside this
// package, swapped in by implementing Predicate.
type Set struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewSet(initial ...chain.PublicKey) *Set {
	s := &Set{members: make(map[string]struct{})}
	for _, pub := range initial {
		s.members[string(pub)] = struct{}{}
	}
	return s
}

func (s *Set) IsValidator(pub chain.PublicKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[string(pub)]
	return ok
}

func (s *Set) Add(pub chain.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[string(pub)] = struct{}{}
}

func (s *Set) Remove(pub chain.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, string(pub))
}
