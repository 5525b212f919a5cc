// Package tracelog implements the two external logging surfaces the
// engine reports through: a structured per-turn TraceLogger and a
// named-event BlackBoxLogger. Both are fire-and-forget — a logging
// failure must never surface as a turn failure.
package tracelog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/voicebrain/engine/internal/logger"
)

// TracerConfig selects the exporter backing the turn span tree. A
// disabled tracer uses a no-op provider so spans cost nothing.
type TracerConfig struct {
	Enabled     bool
	ServiceName string
}

// InitTracerProvider wires an OpenTelemetry TracerProvider. The
// default exporter writes spans to stdout, a safe, dependency-free
// default that reserves a network exporter for an explicit opt-in.
func InitTracerProvider(ctx context.Context, cfg TracerConfig) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func tracer() trace.Tracer {
	return otel.Tracer("voicebrain/engine")
}

// TurnRecord is the structured record emitted once per processTurn
// call via LogTurn.
type TurnRecord struct {
	CallID             string
	TenantID           string
	TurnNumber         int
	Timestamp          time.Time
	Input              string
	FrontlineIntel     map[string]interface{}
	OrchestratorDecision string
	KnowledgeLookup    map[string]interface{}
	BookingAction      string
	Output             string
	PerformanceMS      int64
	Cost               float64
	ContextSnapshot    map[string]interface{}
}

// TraceLogger emits one structured record per turn. LogTurn never
// panics and never blocks its caller beyond a span-close.
type TraceLogger struct {
	tr trace.Tracer
}

// NewTraceLogger constructs a TraceLogger against the process-wide
// tracer provider.
func NewTraceLogger() *TraceLogger {
	return &TraceLogger{tr: tracer()}
}

// LogTurn records one turn as a span with the turn record attached as
// attributes, returning the span's trace ID when tracing is active.
func (t *TraceLogger) LogTurn(ctx context.Context, rec TurnRecord) (traceID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Default().Warn("trace logger panic recovered", "panic", r)
		}
	}()

	_, span := t.tr.Start(ctx, "processTurn",
		trace.WithAttributes(
			attribute.String("call_id", rec.CallID),
			attribute.String("tenant_id", rec.TenantID),
			attribute.Int("turn_number", rec.TurnNumber),
			attribute.String("decision", rec.OrchestratorDecision),
			attribute.String("booking_action", rec.BookingAction),
			attribute.Int64("performance_ms", rec.PerformanceMS),
			attribute.Float64("cost", rec.Cost),
		),
	)
	defer span.End()

	sc := span.SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Event is a BlackBoxLogger named-event identifier. Named, not typed,
// so new events never require a package change to emit.
type Event string

const (
	EventTier3FastMatch       Event = "TIER3_FAST_MATCH"
	EventTier3EmbeddingMatch  Event = "TIER3_EMBEDDING_MATCH"
	EventTier3LLMFallback     Event = "TIER3_LLM_FALLBACK_CALLED"
	EventTier3Exit            Event = "TIER3_EXIT"
	EventRoutingError         Event = "ROUTING_ERROR"
	EventBudgetWarning        Event = "BUDGET_WARNING"
	EventBudgetExceeded       Event = "BUDGET_EXCEEDED"
	EventQuickAnswerUsed      Event = "QUICK_ANSWER_USED"
	EventExtractionError      Event = "S3_EXTRACTION_ERROR"
	EventSectionRuntimeOwner  Event = "SECTION_S1_RUNTIME_OWNER"
	EventSectionSlotExtract   Event = "SECTION_S3_SLOT_EXTRACTION"
	EventCoreRuntimeError     Event = "CORE_RUNTIME_ERROR"
)

// counterKey scopes an event counter by tenant and call, matching the
// BlackBoxLogger's tenant+call scoping requirement.
type counterKey struct {
	tenantID string
	callID   string
	event    Event
}

// BlackBoxLogger is an at-least-once, tenant+call-scoped event sink.
// Counts are atomic; Count and TenantTotal take a read lock only to
// look up or enumerate keys.
type BlackBoxLogger struct {
	mu       sync.RWMutex
	counters map[counterKey]*int64
}

// NewBlackBoxLogger constructs an empty event sink.
func NewBlackBoxLogger() *BlackBoxLogger {
	return &BlackBoxLogger{counters: map[counterKey]*int64{}}
}

// Emit records one occurrence of event for (tenantID, callID). Never
// panics: an emit call is not allowed to affect the caller's turn.
func (b *BlackBoxLogger) Emit(tenantID, callID string, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Default().Warn("black box logger panic recovered", "panic", r)
		}
	}()

	key := counterKey{tenantID: tenantID, callID: callID, event: event}

	b.mu.RLock()
	counter, ok := b.counters[key]
	b.mu.RUnlock()
	if ok {
		atomic.AddInt64(counter, 1)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	counter, ok = b.counters[key]
	if !ok {
		var n int64
		counter = &n
		b.counters[key] = counter
	}
	atomic.AddInt64(counter, 1)
}

// Count returns the at-least-once occurrence count for one event
// scoped to a tenant+call pair.
func (b *BlackBoxLogger) Count(tenantID, callID string, event Event) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counter, ok := b.counters[counterKey{tenantID: tenantID, callID: callID, event: event}]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}

// TenantTotal sums an event's occurrences across every call for one tenant.
func (b *BlackBoxLogger) TenantTotal(tenantID string, event Event) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for k, v := range b.counters {
		if k.tenantID == tenantID && k.event == event {
			total += atomic.LoadInt64(v)
		}
	}
	return total
}
