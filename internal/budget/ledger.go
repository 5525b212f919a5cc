// Package budget implements the per-tenant monthly LLM-fallback
// BudgetLedger. It is modeled directly on a token-bucket rate limiter:
// instead of request counts per time window, it tracks a dollar spend
// against a monthly cap, with the same atomic-increment discipline.
package budget

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a point-in-time read of one tenant's budget state.
type Snapshot struct {
	MonthlyBudget float64
	CurrentSpend  float64
}

// Remaining returns the unspent portion of the monthly budget, floored
// at zero.
func (s Snapshot) Remaining() float64 {
	r := s.MonthlyBudget - s.CurrentSpend
	if r < 0 {
		return 0
	}
	return r
}

// UsageRatio returns CurrentSpend/MonthlyBudget, or 0 when no budget is
// configured (avoids a divide-by-zero driving a false budget-exceeded
// signal for tenants that haven't set one).
func (s Snapshot) UsageRatio() float64 {
	if s.MonthlyBudget <= 0 {
		return 0
	}
	return s.CurrentSpend / s.MonthlyBudget
}

type tenantEntry struct {
	mu    sync.Mutex
	state Snapshot
}

// Ledger tracks one Snapshot per tenant with per-tenant locking so
// concurrent calls for different tenants never contend.
type Ledger struct {
	mu      sync.RWMutex
	tenants map[string]*tenantEntry

	spendGauge *prometheus.GaugeVec
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{tenants: map[string]*tenantEntry{}}
}

// SetMetrics registers the spend gauge against reg. Optional: a Ledger
// with no metrics registered behaves identically, just unobserved.
func (l *Ledger) SetMetrics(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	l.spendGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voicebrain_budget_current_spend",
		Help: "Current monthly Tier-3 spend by tenant.",
	}, []string{"tenant_id"})
	reg.MustRegister(l.spendGauge)
}

func (l *Ledger) observeSpend(tenantID string, spend float64) {
	if l.spendGauge == nil {
		return
	}
	l.spendGauge.WithLabelValues(tenantID).Set(spend)
}

func (l *Ledger) entry(tenantID string) *tenantEntry {
	l.mu.RLock()
	e, ok := l.tenants[tenantID]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.tenants[tenantID]; ok {
		return e
	}
	e = &tenantEntry{}
	l.tenants[tenantID] = e
	return e
}

// SetMonthlyBudget (re)configures a tenant's monthly cap without
// disturbing its current spend, e.g. on a tenant-config reload.
func (l *Ledger) SetMonthlyBudget(tenantID string, monthlyBudget float64) {
	e := l.entry(tenantID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.MonthlyBudget = monthlyBudget
}

// Snapshot returns a tenant's current budget state.
func (l *Ledger) Snapshot(tenantID string) Snapshot {
	e := l.entry(tenantID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TryReserve reports whether the remaining budget is strictly greater
// than estimatedCost (an exact fit is refused), without mutating state.
func (l *Ledger) TryReserve(tenantID string, estimatedCost float64) bool {
	e := l.entry(tenantID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Remaining() > estimatedCost
}

// IncrementSpend atomically adds actualCost to a tenant's current
// spend and returns the resulting snapshot, used only after a
// successful Tier-3 call: budget is never incremented on a Tier-3
// exception.
func (l *Ledger) IncrementSpend(tenantID string, actualCost float64) Snapshot {
	e := l.entry(tenantID)
	e.mu.Lock()
	e.state.CurrentSpend += actualCost
	snap := e.state
	e.mu.Unlock()
	l.observeSpend(tenantID, snap.CurrentSpend)
	return snap
}

// BudgetWarningThreshold is the usage ratio at which TieredRouter
// should emit a budget-warning event.
const BudgetWarningThreshold = 0.8
