// Package semantic implements the Tier-2 SemanticMatcher. It computes
// vector similarity between the caller's utterance and each scenario's
// searchable text using an embedded, pure-Go cosine-similarity store
// (chromem-go), fed by a deterministic hashing embedding function so the
// matcher stays side-effect-free and needs no external embedding API in
// the hot path.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/voicebrain/engine/internal/scenario"
	"github.com/voicebrain/engine/internal/tenant"
)

// embeddingDims is small on purpose: this is a hashed bag-of-words
// sketch, not a learned embedding, so a few hundred dimensions already
// captures enough token-overlap signal for scenario disambiguation.
const embeddingDims = 256

var tokenPattern = regexp.MustCompile(`[a-z0-9']+`)

// embed turns text into a deterministic, L2-normalized pseudo-embedding:
// each token hashes into a dimension bucket and contributes a signed
// unit vote, then the whole vector is normalized. Same text always
// yields the same vector (required for the matcher to be pure).
func embed(text string) []float32 {
	vec := make([]float64, embeddingDims)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := sha256.Sum256([]byte(tok))
		idx := binary.BigEndian.Uint32(h[0:4]) % uint32(embeddingDims)
		sign := 1.0
		if h[4]%2 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, embeddingDims)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func embeddingFunc(_ context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

// Matcher is the Tier-2 engine. It lazily builds one chromem-go
// collection per tenant and rebuilds it whenever the tenant's scenario
// pool fingerprint changes.
type Matcher struct {
	mu          sync.Mutex
	db          *chromem.DB
	collections map[string]*chromem.Collection
	fingerprint map[string]string
}

// NewMatcher constructs an in-memory semantic matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		db:          chromem.NewDB(),
		collections: map[string]*chromem.Collection{},
		fingerprint: map[string]string{},
	}
}

// SearchableText returns the text chromem indexes for a scenario:
// question/name plus must-have keywords.
func SearchableText(sc tenant.Scenario) string {
	if sc.SearchableText != "" {
		return sc.SearchableText
	}
	parts := []string{sc.Name}
	parts = append(parts, sc.Rules.KeywordsMustHave...)
	return strings.Join(parts, " ")
}

func poolFingerprint(candidates []tenant.Scenario) string {
	var sb strings.Builder
	for _, sc := range candidates {
		sb.WriteString(sc.ScenarioID)
		sb.WriteByte('|')
		sb.WriteString(SearchableText(sc))
		sb.WriteByte(';')
	}
	return sb.String()
}

// Select scores the tenant's scenario pool against utterance and
// returns the best match with a [0,1] confidence, matching Tier-1's
// scenario.Result shape so TieredRouter can treat tiers uniformly.
func (m *Matcher) Select(ctx context.Context, tenantID string, utterance string, candidates []tenant.Scenario) (scenario.Result, error) {
	if strings.TrimSpace(utterance) == "" || len(candidates) == 0 {
		return scenario.Result{Confidence: 0}, nil
	}

	col, err := m.ensureCollection(ctx, tenantID, candidates)
	if err != nil {
		return scenario.Result{}, fmt.Errorf("semantic matcher: %w", err)
	}

	queryVec := embed(utterance)
	topK := 1
	if col.Count() < topK {
		topK = col.Count()
	}
	if topK == 0 {
		return scenario.Result{Confidence: 0}, nil
	}

	results, err := col.QueryEmbedding(ctx, queryVec, topK, nil, nil)
	if err != nil {
		return scenario.Result{}, fmt.Errorf("semantic matcher query: %w", err)
	}
	if len(results) == 0 {
		return scenario.Result{Confidence: 0}, nil
	}

	best := results[0]
	confidence := float64(best.Similarity)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	var matched *tenant.Scenario
	for i := range candidates {
		if candidates[i].ScenarioID == best.ID {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		return scenario.Result{Confidence: 0}, nil
	}

	return scenario.Result{
		Scenario:   matched,
		Confidence: confidence,
		Score:      confidence,
		Breakdown:  scenario.Breakdown{},
		Trace:      []string{fmt.Sprintf("semantic best=%s sim=%.4f", matched.ScenarioID, confidence)},
	}, nil
}

func (m *Matcher) ensureCollection(ctx context.Context, tenantID string, candidates []tenant.Scenario) (*chromem.Collection, error) {
	fp := poolFingerprint(candidates)

	m.mu.Lock()
	defer m.mu.Unlock()

	if col, ok := m.collections[tenantID]; ok && m.fingerprint[tenantID] == fp {
		return col, nil
	}

	name := "tenant_" + tenantID
	_ = m.db.DeleteCollection(name)
	col, err := m.db.GetOrCreateCollection(name, nil, embeddingFunc)
	if err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, 0, len(candidates))
	for _, sc := range candidates {
		docs = append(docs, chromem.Document{
			ID:      sc.ScenarioID,
			Content: SearchableText(sc),
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return nil, err
		}
	}

	m.collections[tenantID] = col
	m.fingerprint[tenantID] = fp
	return col, nil
}

// Invalidate drops a tenant's cached collection, e.g. on scenario pool
// mutation, so the next Select rebuilds from scratch.
func (m *Matcher) Invalidate(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fingerprint, tenantID)
}
