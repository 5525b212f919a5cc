package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	w := NewWatcher(path)
	changes := make(chan *TenantDocument, 4)
	w.OnChange = func(doc *TenantDocument) { changes <- doc }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(50 * time.Millisecond) // let the watcher attach before we write

	updated := sampleDoc + "\n# bump\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case doc := <-changes:
		assert.Equal(t, "t1", doc.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_SkipsInvalidReloadWithoutCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	w := NewWatcher(path)
	changes := make(chan *TenantDocument, 4)
	w.OnChange = func(doc *TenantDocument) { changes <- doc }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("trade: hvac\n"), 0o644))

	select {
	case <-changes:
		t.Fatal("expected no reload callback for an invalid document")
	case <-time.After(300 * time.Millisecond):
		// expected: invalid document logged and skipped
	}
}

func TestWatcher_CloseStopsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))

	w := NewWatcher(path)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Start(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}
