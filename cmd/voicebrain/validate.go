package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/voicebrain/engine/internal/config"
	"github.com/voicebrain/engine/internal/llm"
	"github.com/voicebrain/engine/internal/logger"
)

// ValidateCmd loads and validates one or more tenant config files
// without starting the server or contacting any LLM provider, unless
// --explain is set, in which case a failing file's error is additionally
// handed to callAdminLLM for a plain-English explanation. This is the
// one path in the module allowed to reach the admin brain; nothing on
// the query hot path holds a reference to it.
type ValidateCmd struct {
	Paths   []string `arg:"" name:"path" help:"Tenant YAML file(s) or a directory of them." type:"path"`
	Explain bool     `help:"On failure, ask the admin LLM (ADMIN_LLM_MODEL) to explain the error in plain English."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	files, err := expandPaths(c.Paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no tenant config files found")
	}

	var admin *llm.Gateway
	if c.Explain {
		admin, err = buildAdminGateway()
		if err != nil {
			logger.Default().Warn("admin LLM unavailable, --explain will be skipped", "err", err)
		}
	}

	results := make([]string, len(files))
	errs := make([]error, len(files))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			_, err := config.LoadTenantFile(ctx, f)
			mu.Lock()
			if err != nil {
				results[i] = fmt.Sprintf("%s: INVALID: %v", f, err)
				errs[i] = err
			} else {
				results[i] = fmt.Sprintf("%s: valid", f)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, line := range results {
		fmt.Println(line)
		if strings.Contains(line, "INVALID") {
			failed++
			if admin != nil {
				explainValidationError(context.Background(), admin, files[i], errs[i])
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tenant config file(s) failed validation", failed, len(files))
	}
	return nil
}

// buildAdminGateway constructs a Gateway holding only the admin
// provider, so the admin timeout and credentials never leak into the
// dialogue/fallback gateway serve.go builds for the query hot path.
func buildAdminGateway() (*llm.Gateway, error) {
	engineCfg := config.LoadEngineConfig()
	adminProvider, err := buildProvider(engineCfg.AdminModel, engineCfg.AdminTimeout)
	if err != nil {
		return nil, err
	}
	if adminProvider == nil {
		return nil, fmt.Errorf("ADMIN_LLM_MODEL is not set")
	}
	return llm.NewGateway(llm.Config{}, nil, nil, adminProvider, nil), nil
}

// explainValidationError asks the admin brain to translate a raw
// validation error into guidance a non-engineer tenant author can act
// on, printing the result. A failure here is logged, not fatal: the
// file is already correctly reported INVALID above.
func explainValidationError(ctx context.Context, admin *llm.Gateway, path string, cause error) {
	resp, err := admin.CallAdminLLM(ctx, llm.Request{
		SystemPrompt: "You help non-engineers fix malformed tenant configuration files. Explain the error in one or two plain-English sentences and suggest the fix.",
		Messages:     []llm.Message{{Role: "user", Content: fmt.Sprintf("file: %s\nerror: %v", path, cause)}},
		MaxTokens:    200,
	})
	if err != nil {
		logger.Default().Warn("admin LLM explanation failed", "file", path, "err", err)
		return
	}
	fmt.Printf("  explanation: %s\n", resp.Text)
}

// expandPaths resolves a mix of file and directory arguments into a
// sorted, deduplicated list of *.yaml/*.yml files.
func expandPaths(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			full := filepath.Join(p, e.Name())
			if !seen[full] {
				seen[full] = true
				files = append(files, full)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}
