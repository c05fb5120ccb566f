package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemRejectsEscapingKeys(t *testing.T) {
	base := t.TempDir()
	fs := NewFileSystem(base)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"plain key", "universe.json", true},
		{"nested key", "universes/pilot.json", true},
		{"parent traversal", "../escape.json", false},
		{"nested traversal", "universes/../../escape.json", false},
		{"absolute path", "/etc/passwd", false},
		{"double dot in name", "universes/..hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.Save(ctx, tt.key, []byte("{}"))
			if tt.want && err != nil {
				t.Errorf("Save(%q) unexpected error: %v", tt.key, err)
			}
			if !tt.want && err == nil {
				t.Errorf("Save(%q) expected error, got none", tt.key)
			}
		})
	}
}

func TestFileSystemRoundTrip(t *testing.T) {
	base := t.TempDir()
	fs := NewFileSystem(base)
	ctx := context.Background()

	if err := fs.Save(ctx, "universes/pilot.json", []byte(`{"id":"pilot"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := fs.Save(ctx, "universes/pilot.json", []byte(`{"id":"pilot","revision":2}`)); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}

	got, err := fs.Load(ctx, "universes/pilot.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"id":"pilot","revision":2}` {
		t.Errorf("Load = %s", got)
	}

	info, err := os.Stat(filepath.Join(base, "universes", "pilot.json"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	keys, err := fs.List(ctx, "universes/*.json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "universes/pilot.json" {
		t.Errorf("List = %v", keys)
	}

	if err := os.WriteFile(filepath.Join(base, "universes", ".tmp-pilot.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	keys, err = fs.List(ctx, "universes/*.json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("List includes in-flight temporary files: %v", keys)
	}
	if _, err := fs.Load(ctx, "universes/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemHonoursCancellation(t *testing.T) {
	fs := NewFileSystem(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := fs.Save(ctx, "a.json", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Save error = %v, want context.Canceled", err)
	}
	if _, err := fs.Load(ctx, "a.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}
	if _, err := fs.List(ctx, "*.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("List error = %v, want context.Canceled", err)
	}
}

func TestResolveStaysUnderBase(t *testing.T) {
	base := t.TempDir()
	fs := NewFileSystem(base)

	for _, key := range []string{"", ".", "a.json", "dir/a.json"} {
		got, err := fs.resolve(key)
		if err != nil {
			t.Errorf("resolve(%q): %v", key, err)
			continue
		}
		if !strings.HasPrefix(got, base) {
			t.Errorf("resolve(%q) = %q, outside %q", key, got, base)
		}
	}
}
