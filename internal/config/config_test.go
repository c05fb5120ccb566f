package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "default config",
			mutate: func(c *Config) {},
		},
		{
			name: "sqlite with path",
			mutate: func(c *Config) {
				c.Storage = StorageConfig{Driver: "sqlite", Path: "universes.db"}
			},
		},
		{
			name: "file driver without path",
			mutate: func(c *Config) {
				c.Storage = StorageConfig{Driver: "file"}
			},
			wantErr: true,
			errMsg:  "Path",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
			},
			wantErr: true,
			errMsg:  "Driver",
		},
		{
			name: "threshold above one",
			mutate: func(c *Config) {
				c.Scoring.ValidThreshold = 1.5
			},
			wantErr: true,
			errMsg:  "ValidThreshold",
		},
		{
			name: "negative severity weight",
			mutate: func(c *Config) {
				c.Scoring.Weights.Major = -0.2
			},
			wantErr: true,
			errMsg:  "Major",
		},
		{
			name: "zero near match",
			mutate: func(c *Config) {
				c.Corrections.NearMatch = 0
			},
			wantErr: true,
			errMsg:  "NearMatch",
		},
		{
			name: "cache disabled",
			mutate: func(c *Config) {
				c.Cache.MaxEntries = -1
			},
		},
		{
			name: "invalid address",
			mutate: func(c *Config) {
				c.Server.Addr = "localhost"
			},
			wantErr: true,
			errMsg:  "Addr",
		},
		{
			name: "timeout too short",
			mutate: func(c *Config) {
				c.Server.Limits.ReadTimeout = time.Millisecond
			},
			wantErr: true,
			errMsg:  "ReadTimeout",
		},
		{
			name: "rate limit burst zero",
			mutate: func(c *Config) {
				c.Server.Limits.RateLimit.BurstSize = 0
			},
			wantErr: true,
			errMsg:  "BurstSize",
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
			errMsg:  "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.RateLimit.RequestsPerMinute <= 0 {
		t.Errorf("RequestsPerMinute should be positive, got %d", limits.RateLimit.RequestsPerMinute)
	}
	if limits.RateLimit.BurstSize <= 0 {
		t.Errorf("BurstSize should be positive, got %d", limits.RateLimit.BurstSize)
	}
	if limits.WriteTimeout < limits.ReadTimeout {
		t.Errorf("WriteTimeout %v should not be shorter than ReadTimeout %v", limits.WriteTimeout, limits.ReadTimeout)
	}
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continuity.yaml")
	writeConfig(t, path, `
storage:
  driver: sqlite
  path: /var/lib/continuity/universes.db
scoring:
  weights:
    critical: 0.4
    major: 0.25
    minor: 0.1
    suggestion: 0.05
  valid_threshold: 0.75
cache:
  ttl: 30s
continuity:
  emotional_transitions:
    grieving: [numb]
server:
  limits:
    rate_limit:
      requests_per_minute: 120
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries, "unset keys keep their defaults")
	assert.Equal(t, 120, cfg.Server.Limits.RateLimit.RequestsPerMinute)
	assert.Equal(t, 60, cfg.Server.Limits.RateLimit.BurstSize)

	p := cfg.Policy()
	assert.InDelta(t, 0.4, p.Weights.Critical, 1e-9)
	assert.InDelta(t, 0.75, p.ValidThreshold, 1e-9)
	assert.InDelta(t, 0.8, p.AutomaticThreshold, 1e-9)
	assert.Equal(t, map[string][]string{"grieving": {"numb"}}, p.EmotionalTransitions, "a configured table replaces the defaults")
	assert.NotEmpty(t, p.VoiceRules)
	assert.False(t, p.Compatible("grieving", "hopeful"))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continuity.yaml")
	writeConfig(t, path, "log:\n  level: debug\n")

	t.Setenv("CONTINUITY_VALID_THRESHOLD", "0.9")
	t.Setenv("CONTINUITY_ADDR", "127.0.0.1:9090")
	t.Setenv("CONTINUITY_LOG_LEVEL", "warn")
	t.Setenv("CONTINUITY_CACHE_TTL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cfg.Scoring.ValidThreshold, 1e-9)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	bad := filepath.Join(dir, "bad.yaml")
	writeConfig(t, bad, "storage: [")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parsing config file")

	invalid := filepath.Join(dir, "invalid.yaml")
	writeConfig(t, invalid, "storage:\n  driver: file\n")
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "validating config")

	t.Setenv("CONTINUITY_CACHE_MAX_ENTRIES", "lots")
	_, err = Load("")
	assert.ErrorContains(t, err, "parsing environment")
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bible.yaml"), expandTilde("~/bible.yaml"))
	assert.Equal(t, "/etc/bible.yaml", expandTilde("/etc/bible.yaml"))
}

func TestWatchReloadsPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "continuity.yaml")
	writeConfig(t, path, "scoring:\n  valid_threshold: 0.8\n")

	var (
		mu   sync.Mutex
		seen []float64
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) {
			mu.Lock()
			seen = append(seen, c.Scoring.ValidThreshold)
			mu.Unlock()
		})
	}()

	// Rewrite until the watcher, which may still be starting, reports the change.
	require.Eventually(t, func() bool {
		writeConfig(t, path, "scoring:\n  valid_threshold: 2\n")
		writeConfig(t, path, "scoring:\n  valid_threshold: 0.65\n")
		mu.Lock()
		defer mu.Unlock()
		for _, v := range seen {
			if v == 0.65 {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for _, v := range seen {
		assert.LessOrEqual(t, v, 1.0, "invalid configurations are never delivered")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "continuity.yaml"), nil, func(*Config) {})
	assert.Error(t, err)
}
