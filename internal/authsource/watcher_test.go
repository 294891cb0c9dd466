package authsource

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/steveyegge/authcap/internal/util"
)

type countingReloader struct {
	calls atomic.Int32
}

func (c *countingReloader) ReloadAuthSources() error {
	c.calls.Add(1)
	return nil
}

func startWatcher(t *testing.T, dir string) *countingReloader {
	t.Helper()
	r := &countingReloader{}
	w := NewWatcher(dir, r, t.Logf)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() = %v", err)
		}
	})
	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)
	return r
}

func waitForCalls(r *countingReloader, want int32) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.calls.Load() >= want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWatcherReloadsOnCredentialWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	r := startWatcher(t, dir)

	if err := util.AtomicWriteJSON(filepath.Join(dir, "auth-0.json"), map[string]interface{}{"cookies": []string{}}); err != nil {
		t.Fatal(err)
	}
	if !waitForCalls(r, 1) {
		t.Fatal("no reload after credential write")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	r := startWatcher(t, dir)

	for _, name := range []string{"notes.txt", ".auth.lock", "auth-1.json.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(200 * time.Millisecond)
	if got := r.calls.Load(); got != 0 {
		t.Errorf("reload calls = %d, want 0", got)
	}
}
