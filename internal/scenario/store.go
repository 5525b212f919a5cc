// Package scenario implements the tenant scenario pool and the
// Tier-1 HybridScenarioSelector.
package scenario

import (
	"sync"

	"github.com/voicebrain/engine/internal/tenant"
)

// Store holds each tenant's scenario pool, disabled scenarios included;
// Enabled returns the matchable subset. A pool changes only on Load.
type Store struct {
	mu        sync.RWMutex
	byTenant  map[string][]tenant.Scenario
}

// NewStore returns an empty scenario store.
func NewStore() *Store {
	return &Store{byTenant: map[string][]tenant.Scenario{}}
}

// Load replaces a tenant's scenario pool (called by the admin-mutation
// path or a cache refresh); only enabled scenarios are matchable, but
// disabled ones are still stored so admin tools can see them.
func (s *Store) Load(tenantID string, scenarios []tenant.Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTenant[tenantID] = scenarios
}

// Enabled returns only the scenarios with isEnabledForCompany != false.
func (s *Store) Enabled(tenantID string) []tenant.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.byTenant[tenantID]
	out := make([]tenant.Scenario, 0, len(all))
	for _, sc := range all {
		if sc.Enabled() {
			out = append(out, sc)
		}
	}
	return out
}

// All returns every scenario regardless of enablement (admin/debug use).
func (s *Store) All(tenantID string) []tenant.Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]tenant.Scenario(nil), s.byTenant[tenantID]...)
}
