package obs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/router"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/tenant"
)

func TestNewManager_DisabledHandlerReports503(t *testing.T) {
	m := NewManager(false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, m.Enabled())
}

func TestNewManager_NilManagerIsInert(t *testing.T) {
	var m *Manager
	require.NotPanics(t, func() {
		m.WireLedger(budget.NewLedger())
		m.WireRouter(router.New(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), cachelayer.NewCache(cachelayer.NewMemoryStore()), budget.NewLedger(), false))
		_ = m.Handler()
	})
}

func TestWireLedger_ExposesSpendGaugeOnMetricsEndpoint(t *testing.T) {
	m := NewManager(true)
	l := budget.NewLedger()
	m.WireLedger(l)

	l.SetMonthlyBudget("t1", 10)
	l.IncrementSpend("t1", 2.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voicebrain_budget_current_spend")
}

func TestWireRouter_ExposesTierCounterOnMetricsEndpoint(t *testing.T) {
	m := NewManager(true)
	ledger := budget.NewLedger()
	ledger.SetMonthlyBudget("t1", 10)
	r := router.New(llm.NewGateway(llm.Config{}, nil, nil, nil, nil), cachelayer.NewCache(cachelayer.NewMemoryStore()), ledger, true)
	m.WireRouter(r)
	r.Route(context.Background(), tenant.Tenant{ID: "t1"}, "my ac is leaking", nil, scenario.MatchContext{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voicebrain_router_tier_selections_total")
}

func TestRegisterer_NilWhenDisabled(t *testing.T) {
	m := NewManager(false)
	assert.Nil(t, m.Registerer())
}
