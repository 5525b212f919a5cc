package servicetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/tenant"
)

func TestResolve_Locked_Unchanged(t *testing.T) {
	state := tenant.ResolutionState{State: tenant.ResolutionLocked, CanonicalType: "repair"}
	out := Resolve(state, "this is an emergency", Options{})
	assert.Equal(t, state, out)
}

func TestResolve_EmptyText_Clarifies(t *testing.T) {
	out := Resolve(tenant.ResolutionState{}, "", Options{})
	assert.Equal(t, tenant.ResolutionClarifying, out.State)
}

func TestResolve_ExplicitType_Confirmed(t *testing.T) {
	out := Resolve(tenant.ResolutionState{}, "whatever", Options{ExplicitType: "maintenance"})
	assert.Equal(t, tenant.ResolutionConfirmed, out.State)
	assert.Equal(t, "maintenance", out.CanonicalType)
}

func TestResolve_HighConfidence(t *testing.T) {
	out := Resolve(tenant.ResolutionState{}, "my AC is broken and leaking, not working at all", Options{})
	require.Equal(t, tenant.ResolutionResolved, out.State)
	assert.Equal(t, tenant.ConfidenceHigh, out.Confidence)
	assert.Equal(t, "repair", out.CanonicalType)
}

func TestResolve_TieClarifies(t *testing.T) {
	out := Resolve(tenant.ResolutionState{}, "today please, it's an issue", Options{})
	assert.Equal(t, tenant.ResolutionClarifying, out.State)
}

func TestApplyClarification_ConfirmsFromResponse(t *testing.T) {
	state := tenant.ResolutionState{
		State:         tenant.ResolutionClarifying,
		Tentative:     "repair",
		ClarifierType: clarifierEmergencyVsRegular.Key,
	}
	out := ApplyClarification(state, "yes it's an emergency, no heat at all", DefaultConfig())
	assert.Equal(t, tenant.ResolutionConfirmed, out.State)
	assert.Equal(t, "emergency", out.CanonicalType)
}

func TestApplyClarification_FallsBackToTentative(t *testing.T) {
	state := tenant.ResolutionState{
		State:         tenant.ResolutionClarifying,
		Tentative:     "repair",
		ClarifierType: clarifierEmergencyVsRegular.Key,
	}
	out := ApplyClarification(state, "not sure, whenever works", DefaultConfig())
	assert.Equal(t, tenant.ResolutionConfirmed, out.State)
	assert.Equal(t, "repair", out.CanonicalType)
}

func TestLock_Idempotent(t *testing.T) {
	state := tenant.ResolutionState{State: tenant.ResolutionConfirmed, CanonicalType: "repair"}
	locked := Lock(state)
	lockedAgain := Lock(locked)
	assert.Equal(t, tenant.ResolutionLocked, lockedAgain.State)
	assert.Equal(t, "repair", GetCanonicalType(lockedAgain))
}

func TestMirrorLegacyFields(t *testing.T) {
	call := &tenant.CallState{}
	state := tenant.ResolutionState{CanonicalType: "maintenance"}
	MirrorLegacyFields(call, state)
	assert.Equal(t, "maintenance", call.BookingServiceType)
	assert.Equal(t, "maintenance", call.DiscoveryServiceType)
}
