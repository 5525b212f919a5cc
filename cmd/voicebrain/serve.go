package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voicebrain/engine/internal/budget"
	"github.com/voicebrain/engine/internal/cachelayer"
	"github.com/voicebrain/engine/internal/config"
	"github.com/voicebrain/engine/internal/dialogue"
	"github.com/voicebrain/engine/internal/engine"
	"github.com/voicebrain/engine/internal/knowledge"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/logger"
	"github.com/voicebrain/engine/internal/obs"
	"github.com/voicebrain/engine/internal/response"
	"github.com/voicebrain/engine/internal/router"
	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/tracelog"
)

// ServeCmd starts the HTTP surface for the public query entry point.
type ServeCmd struct {
	TenantDir      string        `name:"tenant-dir" help:"Directory of tenant YAML config files." default:"./tenants" type:"path"`
	Port           int           `help:"Port to listen on." default:"8080"`
	Metrics        bool          `help:"Enable the /metrics endpoint." default:"true" negatable:""`
	Tracing        bool          `help:"Enable OpenTelemetry tracing (stdout exporter)."`
	ResponseSeed   int64         `name:"response-seed" help:"Seed for the ResponseEngine's weighted sampler (0 picks a fixed default)."`
	StaleCallAfter time.Duration `name:"stale-call-after" help:"How long an idle call's state is kept in memory." default:"30m"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Default().Info("shutting down")
		cancel()
	}()

	if _, err := tracelog.InitTracerProvider(ctx, tracelog.TracerConfig{Enabled: c.Tracing, ServiceName: "voicebrain"}); err != nil {
		return err
	}

	metrics := obs.NewManager(c.Metrics)

	engineCfg := config.LoadEngineConfig()
	dialogueProvider, err := buildProvider(engineCfg.DialogueModel, engineCfg.DialogueTimeout)
	if err != nil {
		logger.Default().Warn("dialogue LLM unavailable", "err", err)
	}
	fallbackProvider, err := buildProvider(engineCfg.FallbackModel, engineCfg.FallbackTimeout)
	if err != nil {
		logger.Default().Warn("fallback LLM unavailable", "err", err)
	}

	gateway := llm.NewGateway(llm.Config{
		DialogueModel:   engineCfg.DialogueModel,
		FallbackModel:   engineCfg.FallbackModel,
		DialogueTimeout: engineCfg.DialogueTimeout,
		FallbackTimeout: engineCfg.FallbackTimeout,
	}, dialogueProvider, fallbackProvider, nil, metrics.Registerer())

	cache := cachelayer.NewCache(cachelayer.NewMemoryStore())
	ledger := budget.NewLedger()
	metrics.WireLedger(ledger)

	tieredRouter := router.New(gateway, cache, ledger, engineCfg.Enable3TierIntelligence)
	metrics.WireRouter(tieredRouter)

	reg := newTenantRegistry(cache)
	watchers, err := loadDir(ctx, c.TenantDir, reg)
	if err != nil {
		return err
	}
	for _, w := range watchers {
		go func(w *config.Watcher) {
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Default().Warn("tenant watcher stopped", "err", err)
			}
		}(w)
	}

	seed := c.ResponseSeed
	if seed == 0 {
		seed = 1
	}

	eng := engine.New(
		tieredRouter,
		knowledge.NewRouter(),
		dialogue.NewProcessor(gateway, nil),
		response.NewEngine(seed),
		tracelog.NewBlackBoxLogger(),
		tracelog.NewTraceLogger(),
	)

	calls := newCallStateStore()
	go reapStaleCalls(ctx, calls, c.StaleCallAfter)

	h := newHandler(reg, eng, calls)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverMiddleware(logger.Default()))
	r.Use(accessLog(logger.Default()))
	r.Get("/healthz", h.healthz)
	r.Post("/query", h.query)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	port := c.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Default().Info("voicebrain serving", "port", c.Port, "tenant_dir", c.TenantDir, "tenants", len(watchers))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func reapStaleCalls(ctx context.Context, calls *callStateStore, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			calls.evictStale(maxAge)
		}
	}
}

// queryRequest is the public query(tenantId, utterance, context) entry
// point's wire shape.
type queryRequest struct {
	TenantID  string            `json:"tenantId"`
	CallID    string            `json:"callId"`
	Utterance string            `json:"utterance"`
	Channel   string            `json:"channel"`
	Context   map[string]string `json:"context"`
}

type queryResponse struct {
	Response     *string `json:"response"`
	Confidence   float64 `json:"confidence"`
	Source       string  `json:"source"`
	Tier         string  `json:"tier,omitempty"`
	ScenarioID   string  `json:"scenarioId,omitempty"`
	ReplyType    string  `json:"replyType,omitempty"`
	Cached       bool    `json:"cached"`
	ResponseMs   int64   `json:"responseMs"`
}

type handler struct {
	reg   *tenantRegistry
	eng   *engine.Engine
	calls *callStateStore
}

func newHandler(reg *tenantRegistry, eng *engine.Engine, calls *callStateStore) *handler {
	return &handler{reg: reg, eng: eng, calls: calls}
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.Utterance == "" {
		http.Error(w, "tenantId and utterance are required", http.StatusBadRequest)
		return
	}

	entry, ok := h.reg.get(req.TenantID)
	if !ok {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	callID := req.CallID
	if callID == "" {
		callID = req.TenantID + "-" + r.Header.Get(headerRequestID)
	}
	callState := h.calls.getOrCreate(req.TenantID, callID)
	callState.LastActivityAt = time.Now()

	channel := response.Channel(req.Channel)
	if channel == "" {
		channel = response.ChannelVoice
	}

	result := h.eng.Query(r.Context(), engine.QueryInput{
		Tenant:        entry.tenant,
		CallState:     callState,
		Utterance:     req.Utterance,
		Candidates:    entry.candidates,
		KnowledgeData: entry.knowledgeData,
		MatchContext:  scenario.MatchContext{Channel: string(channel), CallerKnown: req.Context["name"] != ""},
		Channel:       channel,
		ResponseCtx:   response.Context{CallerName: req.Context["name"], CallerInfo: req.Context},
		TriageCards:   entry.triageCards,
		ServiceTypes:  entry.serviceTypes,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(queryResponse{
		Response:   result.Response,
		Confidence: result.Confidence,
		Source:     result.Metadata.Source,
		Tier:       result.Metadata.Tier,
		ScenarioID: result.Metadata.ScenarioID,
		ReplyType:  result.Metadata.ReplyType,
		Cached:     result.Metadata.Cached,
		ResponseMs: result.Metadata.ResponseTimeMs,
	})
}
