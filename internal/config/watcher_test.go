package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/ntv2node/internal/logging"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writePresets(t *testing.T, path string, value uint32) {
	t.Helper()
	body := fmt.Sprintf("[[registers]]\nname = \"genlock\"\nnum = 100\nvalue = %d\n", value)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newWatcher(t *testing.T, path string, debounce time.Duration, opts ...WatcherOption[[]RegisterPreset]) *Watcher[[]RegisterPreset] {
	t.Helper()
	opts = append([]WatcherOption[[]RegisterPreset]{WithDebounce[[]RegisterPreset](debounce)}, opts...)
	return NewConfigWatcher(path, LoadRegisterPresets, newTestLogger(), opts...)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 1)

	received := make(chan []RegisterPreset, 1)
	w := newWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func(p []RegisterPreset) { received <- p })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writePresets(t, path, 42)

	select {
	case p := <-received:
		if len(p) != 1 || p[0].Value != 42 {
			t.Errorf("got %+v, want one preset with value 42", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 1)

	var count1, count2 atomic.Int32
	w := newWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func([]RegisterPreset) { count1.Add(1) })
	unsub2 := w.OnReload(func([]RegisterPreset) { count2.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writePresets(t, path, 10)
	time.Sleep(200 * time.Millisecond)

	unsub2()

	writePresets(t, path, 20)
	time.Sleep(200 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 1)

	errorReceived := make(chan error, 1)
	configReceived := make(chan []RegisterPreset, 1)
	w := newWatcher(t, path, 50*time.Millisecond,
		WithErrorHandler[[]RegisterPreset](func(err error) { errorReceived <- err }))
	w.OnReload(func(p []RegisterPreset) { configReceived <- p })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[[registers]\nnum = "), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("reload handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 0)

	var count atomic.Int32
	var last atomic.Uint32
	w := newWatcher(t, path, 200*time.Millisecond)
	w.OnReload(func(p []RegisterPreset) {
		count.Add(1)
		if len(p) == 1 {
			last.Store(p[0].Value)
		}
	})

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	for i := uint32(1); i <= 5; i++ {
		writePresets(t, path, i)
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_ConcurrentSubscribers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 0)

	w := newWatcher(t, path, 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := w.OnReload(func([]RegisterPreset) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}
	for i := range uint32(5) {
		writePresets(t, path, i)
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	writePresets(t, path, 1)

	var count atomic.Int32
	w := newWatcher(t, path, 50*time.Millisecond)
	w.OnReload(func([]RegisterPreset) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	writePresets(t, path, 99)
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestWatchLoggingAppliesLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	logger := logging.GetLogger("rpc")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("rpc module should start at info")
	}

	w, err := WatchLogging(path, newTestLogger(), WithDebounce[logging.Config](50*time.Millisecond))
	if err != nil {
		t.Fatalf("WatchLogging failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\nrpc = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		if time.Now().After(deadline) {
			t.Fatal("rpc module level was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
