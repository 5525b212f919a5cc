package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebrain/engine/internal/tenant"
)

func TestCallStateStore_GetOrCreate_ReturnsSameInstanceForSameCallID(t *testing.T) {
	store := newCallStateStore()

	first := store.getOrCreate("t1", "call-1")
	second := store.getOrCreate("t1", "call-1")

	assert.Same(t, first, second)
	assert.Equal(t, tenant.PhaseDiscovery, first.Phase)
}

func TestCallStateStore_GetOrCreate_DistinctCallsGetDistinctState(t *testing.T) {
	store := newCallStateStore()

	a := store.getOrCreate("t1", "call-a")
	b := store.getOrCreate("t1", "call-b")

	assert.NotSame(t, a, b)
}

func TestCallStateStore_EvictStale_RemovesOnlyOldCalls(t *testing.T) {
	store := newCallStateStore()

	fresh := store.getOrCreate("t1", "fresh")
	stale := store.getOrCreate("t1", "stale")
	stale.LastActivityAt = time.Now().Add(-time.Hour)

	store.evictStale(time.Minute)

	_, freshStillThere := store.calls["fresh"]
	_, staleStillThere := store.calls["stale"]
	require.True(t, freshStillThere)
	assert.Same(t, fresh, store.calls["fresh"])
	assert.False(t, staleStillThere)
}
