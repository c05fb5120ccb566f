package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dotcommander/continuity/internal/config"
	"github.com/dotcommander/continuity/internal/consistency"
	"github.com/dotcommander/continuity/internal/content"
	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/observability"
	"github.com/dotcommander/continuity/internal/storage"
	"github.com/dotcommander/continuity/internal/universe"
)

// app is the engine wired from configuration.
type app struct {
	cfg    *config.Config
	obs    observability.Observer
	store  *universe.Store
	engine *consistency.Engine
}

func newApp(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*app, error) {
	bible, err := narrative.LoadStoryBible(cfg.Continuity.StoryBible)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}

	obs := observability.Observer{Logger: logger, Metrics: metrics}
	store := universe.NewStore(backend, universe.WithStoryBible(bible), universe.WithLogger(logger))
	engine := consistency.NewEngine(store,
		consistency.WithPolicy(cfg.Policy()),
		consistency.WithObserver(obs),
		consistency.WithCache(cfg.Cache.MaxEntries, cfg.Cache.TTL),
	)
	return &app{cfg: cfg, obs: obs, store: store, engine: engine}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openBackend(cfg config.StorageConfig) (universe.Backend, error) {
	switch cfg.Driver {
	case "memory":
		return universe.NewMemoryBackend(), nil
	case "file":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		return universe.NewFileBackend(storage.NewFileSystem(cfg.Path)), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		return universe.OpenSQLite(cfg.Path)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// readEnvelope reads a content envelope, letting non-empty flags override
// the tab and content type it declares.
func readEnvelope(path string, tab content.TabType, contentType string) (content.Payload, content.Envelope, error) {
	var env content.Envelope
	data, err := readInput(path)
	if err != nil {
		return nil, env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, env, fmt.Errorf("parsing content file: %w", err)
	}
	if tab != "" {
		env.TabType = tab
	}
	if contentType != "" {
		env.ContentType = contentType
	}
	if env.TabType == "" {
		return nil, env, fmt.Errorf("content file %s declares no tabType and --tab is not set", path)
	}
	p, err := content.Decode(env.TabType, env.Content)
	if err != nil {
		return nil, env, err
	}
	return p, env, nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
