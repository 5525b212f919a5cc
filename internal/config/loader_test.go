package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
id: t1
trade: hvac
use3TierIntelligence: true
aiAgentLogic:
  thresholds:
    tier1: 0.55
    tier2: ${TEST_TIER2_THRESHOLD:-0.65}
  priorityFlow:
    - name: instantResponses
      priority: 1
      enabled: true
      threshold: 0.5
  templateGatekeeper:
    enabled: true
    tier1Threshold: 0.55
    tier2Threshold: 0.65
    monthlyBudget: 25
  knowledgeManagement:
    scenarios:
      - scenarioId: AC_LEAK
        name: AC Leak
        scenarioType: FAQ
        replyStrategy: AUTO
        isEnabledForCompany: true
        fullReplies:
          - "Sounds like a drain line issue."
        rules:
          keywordsMustHave: ["ac", "leak"]
aiAgentSettings:
  frontDeskBehavior:
    personality: warm and concise
    bookingSlotOrder: ["name", "phone", "address", "time", "serviceType"]
`

func writeSampleDoc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	return path
}

func TestLoad_DecodesNestedDocumentAndExpandsEnvVars(t *testing.T) {
	path := writeSampleDoc(t)
	doc, err := NewLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "t1", doc.ID)
	assert.Equal(t, "hvac", doc.Trade)
	assert.True(t, doc.Use3TierIntelligence)
	assert.Equal(t, 0.55, doc.AIAgentLogic.Thresholds.Tier1)
	assert.Equal(t, 0.65, doc.AIAgentLogic.Thresholds.Tier2)
	require.Len(t, doc.AIAgentLogic.PriorityFlow, 1)
	assert.Equal(t, "instantResponses", doc.AIAgentLogic.PriorityFlow[0].Name)

	scenarios := doc.Scenarios()
	require.Len(t, scenarios, 1)
	assert.Equal(t, "AC_LEAK", scenarios[0].ScenarioID)
	assert.Equal(t, []string{"ac", "leak"}, scenarios[0].Rules.KeywordsMustHave)

	assert.Equal(t, "warm and concise", doc.AIAgentSettings.FrontDeskBehavior.Personality)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestLoad_InvalidDocumentFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trade: hvac\n"), 0o644))

	_, err := NewLoader(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestLoadTenantFile_ConvenienceWrapper(t *testing.T) {
	path := writeSampleDoc(t)
	doc, err := LoadTenantFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "t1", doc.ID)
}
