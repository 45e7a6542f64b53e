package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/bosun/config"
)

func nextUpdate(t *testing.T, out <-chan config.Update, timeout time.Duration) config.Update {
	t.Helper()
	select {
	case upd, ok := <-out:
		if !ok {
			t.Fatal("watch channel closed early")
		}
		return upd
	case <-time.After(timeout):
		t.Fatal("timeout waiting for update")
		return config.Update{}
	}
}

func TestFileWatcher_EmitsInitialContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	upd := nextUpdate(t, out, 500*time.Millisecond)
	if string(upd.Data) != "initial" {
		t.Errorf("initial update = %+v, want the file contents", upd)
	}
}

func TestFileWatcher_EmitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	nextUpdate(t, out, 500*time.Millisecond)

	if err := os.WriteFile(path, []byte("updated"), 0o600); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}

	upd := nextUpdate(t, out, 2*time.Second)
	if string(upd.Data) != "updated" {
		t.Errorf("update = %+v, want the new contents", upd)
	}
}

func TestFileWatcher_EmitsOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	nextUpdate(t, out, 500*time.Millisecond)

	// Editors save by writing a sibling and renaming it over the
	// watched path.
	tmp := filepath.Join(dir, "config.toml.tmp")
	if err := os.WriteFile(tmp, []byte("replaced"), 0o600); err != nil {
		t.Fatalf("failed to write replacement: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("failed to rename replacement: %v", err)
	}

	upd := nextUpdate(t, out, 2*time.Second)
	if upd.Removed {
		t.Fatalf("update = %+v, a replace must not read as removal", upd)
	}
	if string(upd.Data) != "replaced" {
		t.Errorf("update = %+v, want the replacement contents", upd)
	}
}

func TestFileWatcher_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	nextUpdate(t, out, 500*time.Millisecond)

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	upd := nextUpdate(t, out, 2*time.Second)
	if !upd.Removed {
		t.Errorf("update = %+v, want a removal", upd)
	}
}

func TestFileWatcher_MissingFileReportsReadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	upd := nextUpdate(t, out, 500*time.Millisecond)
	if upd.Err == nil {
		t.Errorf("initial update = %+v, want a read error for the missing file", upd)
	}
}

func TestFileWatcher_ErrorOnMissingDirectory(t *testing.T) {
	_, err := config.NewFileWatcher("/nonexistent/path/config.toml").Watch(context.Background())
	if err == nil {
		t.Error("Watch() error = nil for an unwatchable directory")
	}
}

func TestFileWatcher_ClosesOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("initial"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	nextUpdate(t, out, 500*time.Millisecond)

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected the channel to close")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for channel close")
	}
}

func TestFileWatcher_EventuallySeesLatestValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := config.NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	nextUpdate(t, out, 500*time.Millisecond)

	if err := os.WriteFile(path, []byte("final"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	// Intermediate updates are fine as long as the last write lands.
	var lastSeen string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case upd := <-out:
			lastSeen = string(upd.Data)
			if lastSeen == "final" {
				return
			}
		case <-timeout:
			t.Fatalf("timeout: last seen %q, want final", lastSeen)
		}
	}
}
