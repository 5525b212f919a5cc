package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/config"
	"github.com/voicebrain/engine/internal/knowledge"
	"github.com/voicebrain/engine/internal/logger"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/tenant"
)

// tenantEntry bundles everything one query call needs for a tenant,
// derived once from its TenantDocument at load/reload time so the hot
// path never re-decodes YAML. candidates holds only the scenarios the
// scenario.Store reports enabled for this tenant.
type tenantEntry struct {
	tenant        tenant.Tenant
	candidates    []tenant.Scenario
	knowledgeData knowledge.SourceData
	triageCards   []tenant.TriageCard
	serviceTypes  servicetype.Config
}

// tenantRegistry holds every loaded tenant, hot-reloaded in place by a
// config.Watcher per tenant file. scenarios is the full (enabled and
// disabled) scenario pool per tenant, behind it so admin tooling can
// still inspect disabled scenarios via scenarios.All while the query
// path only ever sees scenarios.Enabled.
type tenantRegistry struct {
	mu        sync.RWMutex
	tenants   map[string]*tenantEntry
	cache     *cachelayer.Cache
	scenarios *scenario.Store
}

func newTenantRegistry(cache *cachelayer.Cache) *tenantRegistry {
	return &tenantRegistry{tenants: map[string]*tenantEntry{}, cache: cache, scenarios: scenario.NewStore()}
}

func entryFromDoc(doc *config.TenantDocument, store *scenario.Store) *tenantEntry {
	store.Load(doc.ID, doc.Scenarios())
	return &tenantEntry{
		tenant:        doc.ToTenant(),
		candidates:    store.Enabled(doc.ID),
		knowledgeData: doc.ToKnowledgeData(),
		triageCards:   doc.TriageCards(),
		serviceTypes:  doc.ServiceTypeConfig(),
	}
}

func (r *tenantRegistry) set(doc *config.TenantDocument) {
	r.mu.Lock()
	r.tenants[doc.ID] = entryFromDoc(doc, r.scenarios)
	r.mu.Unlock()
}

func (r *tenantRegistry) get(tenantID string) (*tenantEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tenants[tenantID]
	return e, ok
}

// onReload is wired as a config.Watcher's OnChange: it refreshes the
// tenant entry and invalidates its cached priorities/knowledge/
// personality/qa keys so the next query re-reads the new config
// instead of serving a stale cached match.
func (r *tenantRegistry) onReload(ctx context.Context) func(*config.TenantDocument) {
	return func(doc *config.TenantDocument) {
		r.set(doc)
		r.cache.InvalidateTenant(ctx, doc.ID)
		logger.Default().Info("tenant config reloaded", "tenant", doc.ID)
	}
}

// loadDir loads every *.yaml/*.yml file in dir as a tenant document,
// populating the registry and returning one Watcher per file so the
// caller can start them against ctx.
func loadDir(ctx context.Context, dir string, reg *tenantRegistry) ([]*config.Watcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tenant config dir: %w", err)
	}

	var watchers []*config.Watcher
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, e.Name())
		doc, err := config.LoadTenantFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load tenant file %s: %w", path, err)
		}
		reg.set(doc)

		w := config.NewWatcher(path)
		w.OnChange = reg.onReload(ctx)
		watchers = append(watchers, w)
	}
	return watchers, nil
}
