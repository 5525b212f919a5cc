// Package engine wires every component into the single public entry
// point a caller-facing integration uses: Query. No internal error may
// cross this boundary as an exception — the only user-visible failure
// mode is a nil response, which signals "transfer to a human".
package engine

import (
	"context"
	"time"

	"github.com/voicebrain/engine/internal/dialogue"
	"github.com/voicebrain/engine/internal/knowledge"
	"github.com/voicebrain/engine/internal/logger"
	"github.com/voicebrain/engine/internal/response"
	"github.com/voicebrain/engine/internal/router"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/servicetype"
	"github.com/voicebrain/engine/internal/tenant"
	"github.com/voicebrain/engine/internal/tracelog"
)

// Metadata accompanies every Query result.
type Metadata struct {
	Source         string
	Tier           string
	ScenarioID     string
	ScenarioName   string
	ReplyType      string
	FollowUp       string
	ResponseTimeMs int64
	Cached         bool
}

// Result is the Query outcome. A nil Response signals "transfer to a
// human" to the caller.
type Result struct {
	Confidence float64
	Response   *string
	Metadata   Metadata
}

// QueryInput bundles everything one turn needs across every wired
// component.
type QueryInput struct {
	Tenant        tenant.Tenant
	CallState     *tenant.CallState
	Utterance     string
	Candidates    []tenant.Scenario
	KnowledgeData knowledge.SourceData
	MatchContext  scenario.MatchContext
	Channel       response.Channel
	ResponseCtx   response.Context
	TriageCards   []tenant.TriageCard
	ServiceTypes  servicetype.Config
}

// Engine is the composition root: TieredRouter/PriorityKnowledgeRouter
// attempt a scripted match first; DialogueTurnProcessor is the
// always-on conversational front door for tenants that run neither
// router.
type Engine struct {
	router         *router.Router
	knowledge      *knowledge.Router
	dialogue       *dialogue.Processor
	responseEngine *response.Engine
	blackbox       *tracelog.BlackBoxLogger
	tracer         *tracelog.TraceLogger
}

// New wires a fully composed Engine from its already-constructed
// dependencies.
func New(r *router.Router, k *knowledge.Router, d *dialogue.Processor, respEngine *response.Engine, blackbox *tracelog.BlackBoxLogger, tr *tracelog.TraceLogger) *Engine {
	if blackbox == nil {
		blackbox = tracelog.NewBlackBoxLogger()
	}
	if tr == nil {
		tr = tracelog.NewTraceLogger()
	}
	return &Engine{router: r, knowledge: k, dialogue: d, responseEngine: respEngine, blackbox: blackbox, tracer: tr}
}

// Query is the system's sole public entry point.
func (e *Engine) Query(ctx context.Context, in QueryInput) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Default().Warn("engine query panic recovered", "tenant", in.Tenant.ID, "panic", r)
			e.blackbox.Emit(in.Tenant.ID, callID(in.CallState), tracelog.EventCoreRuntimeError)
			result = Result{
				Confidence: 0,
				Response:   nil,
				Metadata:   Metadata{Source: "internal_error", ResponseTimeMs: time.Since(start).Milliseconds()},
			}
		}
	}()

	result = e.route(ctx, in)
	result.Metadata.ResponseTimeMs = time.Since(start).Milliseconds()

	e.tracer.LogTurn(ctx, tracelog.TurnRecord{
		CallID:               callID(in.CallState),
		TenantID:             in.Tenant.ID,
		TurnNumber:           turnNumber(in.CallState),
		Timestamp:            time.Now(),
		Input:                in.Utterance,
		OrchestratorDecision: result.Metadata.Source,
		PerformanceMS:        result.Metadata.ResponseTimeMs,
	})

	return result
}

func (e *Engine) route(ctx context.Context, in QueryInput) Result {
	t := in.Tenant

	if t.Use3TierIntelligence {
		return e.routeTiered(ctx, in)
	}
	if t.UsePriorityRouter {
		return e.routeKnowledge(in)
	}
	return e.routeDialogue(ctx, in)
}

func (e *Engine) routeTiered(ctx context.Context, in QueryInput) Result {
	t := in.Tenant
	res := e.router.Route(ctx, t, in.Utterance, in.Candidates, in.MatchContext)

	switch res.Warning {
	case "budgetExceeded":
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventBudgetExceeded)
	case "budgetWarning":
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventBudgetWarning)
	case "routingError":
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventRoutingError)
	}

	switch res.Tier {
	case router.Tier1:
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventTier3FastMatch)
	case router.Tier2:
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventTier3EmbeddingMatch)
	case router.Tier3:
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventTier3LLMFallback)
	}
	if !res.Matched {
		e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.EventTier3Exit)
	}

	if !res.Matched || res.Scenario == nil {
		return Result{
			Confidence: 0,
			Response:   nil,
			Metadata:   Metadata{Source: "tiered_no_match", Tier: tierName(res.Tier), Cached: res.FromCache},
		}
	}

	rendered := e.responseEngine.Respond(*res.Scenario, in.Channel, in.ResponseCtx)
	return Result{
		Confidence: res.Confidence,
		Response:   &rendered.Text,
		Metadata: Metadata{
			Source:       "tiered_router",
			Tier:         tierName(res.Tier),
			ScenarioID:   res.Scenario.ScenarioID,
			ScenarioName: res.Scenario.Name,
			ReplyType:    rendered.StrategyUsed,
			FollowUp:     string(rendered.FollowUp),
			Cached:       res.FromCache,
		},
	}
}

func (e *Engine) routeKnowledge(in QueryInput) Result {
	t := in.Tenant
	res := e.knowledge.Route(t.PriorityFlow, in.KnowledgeData, in.Utterance, in.MatchContext)
	if !res.Success {
		return Result{Confidence: 0, Response: nil, Metadata: Metadata{Source: "knowledge_no_match"}}
	}

	e.blackbox.Emit(t.ID, callID(in.CallState), tracelog.Event(string(res.Source)+"_MATCHED"))

	text := res.Response
	return Result{
		Confidence: res.Confidence,
		Response:   &text,
		Metadata:   Metadata{Source: string(res.Source), ReplyType: "KNOWLEDGE_LOOKUP"},
	}
}

func (e *Engine) routeDialogue(ctx context.Context, in QueryInput) Result {
	out := e.dialogue.ProcessTurn(ctx, dialogue.Input{
		Tenant:            in.Tenant,
		CallState:         in.CallState,
		Utterance:         in.Utterance,
		TriageCards:       in.TriageCards,
		ServiceTypeConfig: in.ServiceTypes,
	})

	if out.StrategyUsed == "QUICK_ANSWER" {
		e.blackbox.Emit(in.Tenant.ID, callID(in.CallState), tracelog.EventQuickAnswerUsed)
	}

	text := out.Reply
	confidence := 1.0
	if out.Mode == dialogue.ModeRescue {
		confidence = 0.3
	}

	return Result{
		Confidence: confidence,
		Response:   &text,
		Metadata: Metadata{
			Source:    out.StrategyUsed,
			ReplyType: string(out.Mode),
			FollowUp:  out.NextGoal,
		},
	}
}

func tierName(t router.Tier) string {
	switch t {
	case router.Tier1:
		return "1"
	case router.Tier2:
		return "2"
	case router.Tier3:
		return "3"
	default:
		return ""
	}
}

func callID(cs *tenant.CallState) string {
	if cs == nil {
		return ""
	}
	return cs.CallID
}

func turnNumber(cs *tenant.CallState) int {
	if cs == nil {
		return 0
	}
	return cs.TurnCount
}
