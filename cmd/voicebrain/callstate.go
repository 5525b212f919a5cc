package main

import (
	"sync"
	"time"

	"github.com/voicebrain/engine/internal/tenant"
)

// callStateStore holds the ephemeral, per-call DialogueTurnProcessor
// state across HTTP requests for the lifetime of one call, keyed by
// callId. A call that never resumes is reaped by evictStale.
type callStateStore struct {
	mu    sync.RWMutex
	calls map[string]*tenant.CallState
}

func newCallStateStore() *callStateStore {
	return &callStateStore{calls: map[string]*tenant.CallState{}}
}

// getOrCreate returns the existing CallState for callID, or a freshly
// initialized one positioned at the start of the phase machine.
func (s *callStateStore) getOrCreate(tenantID, callID string) *tenant.CallState {
	s.mu.RLock()
	cs, ok := s.calls[callID]
	s.mu.RUnlock()
	if ok {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.calls[callID]; ok {
		return cs
	}
	now := time.Now()
	cs = &tenant.CallState{
		CallID:         callID,
		TenantID:       tenantID,
		Phase:          tenant.PhaseDiscovery,
		Lane:           tenant.LaneDiscovery,
		KnownSlots:     map[string]tenant.KnownSlot{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.calls[callID] = cs
	return cs
}

// evictStale removes calls whose LastActivityAt is older than maxAge,
// bounding memory for a server that runs longer than any one call.
func (s *callStateStore) evictStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cs := range s.calls {
		if cs.LastActivityAt.Before(cutoff) {
			delete(s.calls, id)
		}
	}
}
