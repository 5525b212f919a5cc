package tracelog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogTurn_DoesNotPanicWithNoopProvider(t *testing.T) {
	logger := NewTraceLogger()
	assert.NotPanics(t, func() {
		logger.LogTurn(context.Background(), TurnRecord{
			CallID:     "c1",
			TenantID:   "t1",
			TurnNumber: 1,
			Timestamp:  time.Now(),
		})
	})
}

func TestBlackBoxLogger_CountsAtLeastOncePerScope(t *testing.T) {
	b := NewBlackBoxLogger()
	b.Emit("t1", "c1", EventTier3FastMatch)
	b.Emit("t1", "c1", EventTier3FastMatch)
	b.Emit("t1", "c2", EventTier3FastMatch)

	assert.Equal(t, int64(2), b.Count("t1", "c1", EventTier3FastMatch))
	assert.Equal(t, int64(1), b.Count("t1", "c2", EventTier3FastMatch))
	assert.Equal(t, int64(0), b.Count("t2", "c1", EventTier3FastMatch))
}

func TestBlackBoxLogger_TenantTotalSumsAcrossCalls(t *testing.T) {
	b := NewBlackBoxLogger()
	b.Emit("t1", "c1", EventBudgetExceeded)
	b.Emit("t1", "c2", EventBudgetExceeded)
	b.Emit("t2", "c3", EventBudgetExceeded)

	assert.Equal(t, int64(2), b.TenantTotal("t1", EventBudgetExceeded))
	assert.Equal(t, int64(1), b.TenantTotal("t2", EventBudgetExceeded))
}

func TestBlackBoxLogger_ConcurrentEmitsAreSafe(t *testing.T) {
	b := NewBlackBoxLogger()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			b.Emit("t1", "c1", EventQuickAnswerUsed)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Equal(t, int64(50), b.Count("t1", "c1", EventQuickAnswerUsed))
}
