package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`),
}

// expandEnvVars substitutes ${VAR}, ${VAR:-default}, and $VAR in s.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) != 2 {
			return match
		}
		return os.Getenv(parts[1])
	})

	return s
}

// parseValue coerces an expanded string into the most specific scalar
// it looks like, so a YAML value of "${TIER1_THRESHOLD:-0.55}" decodes
// as a float rather than a string once expanded.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// ExpandEnvVarsInData recursively expands env var references in a
// decoded YAML document, walking maps and slices, and coercing any
// string whose expansion changed into its apparent scalar type.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = ExpandEnvVarsInData(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result
	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env, in that precedence order,
// ignoring a missing file rather than failing startup.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// GetProviderAPIKey looks up the API key env var for a wire-protocol
// provider name, returning "" for an unrecognized provider. The
// recognized set mirrors buildProvider's switch: only providers the
// module actually has a client for.
func GetProviderAPIKey(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

// EngineConfig holds the process-wide settings controlled by
// environment variables rather than the per-tenant document: which
// models back the three LLM roles, their timeouts, and whether 3-tier
// intelligence is globally enabled. AdminModel/AdminTimeout back
// callAdminLLM, which offline tooling (cmd/voicebrain's validate
// --explain) may call; the query hot path never reads them.
type EngineConfig struct {
	Enable3TierIntelligence bool
	DialogueModel           string
	FallbackModel           string
	AdminModel              string
	DialogueTimeout         time.Duration
	FallbackTimeout         time.Duration
	AdminTimeout            time.Duration
}

// LoadEngineConfig reads the named environment variables, applying the
// same defaults llm.Config.withDefaults would apply (and, for the admin
// timeout, CallAdminLLM's fixed 30s) when a variable is unset or
// unparsable.
func LoadEngineConfig() EngineConfig {
	cfg := EngineConfig{
		DialogueModel: os.Getenv("DIALOGUE_LLM_MODEL"),
		FallbackModel: os.Getenv("FALLBACK_LLM_MODEL"),
		AdminModel:    os.Getenv("ADMIN_LLM_MODEL"),
	}

	if v := os.Getenv("ENABLE_3_TIER_INTELLIGENCE"); v != "" {
		cfg.Enable3TierIntelligence = strings.EqualFold(v, "true") || v == "1"
	}

	cfg.DialogueTimeout = parseMillisEnv("DIALOGUE_LLM_TIMEOUT_MS", 4*time.Second)
	cfg.FallbackTimeout = parseMillisEnv("FALLBACK_LLM_TIMEOUT_MS", 5*time.Second)
	cfg.AdminTimeout = parseMillisEnv("ADMIN_LLM_TIMEOUT_MS", 30*time.Second)

	return cfg
}

func parseMillisEnv(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
