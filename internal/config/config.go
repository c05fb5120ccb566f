package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/continuity/internal/consistency"
)

type Config struct {
	Storage     StorageConfig     `yaml:"storage" validate:"required"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Corrections CorrectionsConfig `yaml:"corrections"`
	Cache       CacheConfig       `yaml:"cache"`
	Continuity  ContinuityConfig  `yaml:"continuity"`
	Server      ServerConfig      `yaml:"server" validate:"required"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Log         LogConfig         `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"CONTINUITY_STORAGE_DRIVER" validate:"required,oneof=memory file sqlite"`
	Path   string `yaml:"path" env:"CONTINUITY_STORAGE_PATH" validate:"required_unless=Driver memory"`
}

type ScoringConfig struct {
	Weights        consistency.SeverityWeights `yaml:"weights"`
	WarningPenalty float64                     `yaml:"warning_penalty" env:"CONTINUITY_WARNING_PENALTY" validate:"gte=0,lte=1"`
	ValidThreshold float64                     `yaml:"valid_threshold" env:"CONTINUITY_VALID_THRESHOLD" validate:"gte=0,lte=1"`
	DegradedScore  float64                     `yaml:"degraded_score" env:"CONTINUITY_DEGRADED_SCORE" validate:"gte=0,lte=1"`
}

type CorrectionsConfig struct {
	AutomaticThreshold float64 `yaml:"automatic_threshold" env:"CONTINUITY_AUTOMATIC_THRESHOLD" validate:"gte=0,lte=1"`
	ThemeConfidenceCap float64 `yaml:"theme_confidence_cap" env:"CONTINUITY_THEME_CONFIDENCE_CAP" validate:"gte=0,lte=1"`
	NearMatch          float64 `yaml:"near_match" env:"CONTINUITY_NEAR_MATCH" validate:"gt=0,lte=1"`
}

// CacheConfig sizes the validation result cache. MaxEntries of -1 disables it.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries" env:"CONTINUITY_CACHE_MAX_ENTRIES" validate:"min=-1"`
	TTL        time.Duration `yaml:"ttl" env:"CONTINUITY_CACHE_TTL" validate:"min=0"`
}

// ContinuityConfig holds the tunable continuity rules. Nil tables mean the
// built-in defaults; an explicitly empty table turns the check off.
type ContinuityConfig struct {
	StoryBible           string                           `yaml:"story_bible" env:"CONTINUITY_STORY_BIBLE"`
	EmotionalTransitions map[string][]string              `yaml:"emotional_transitions"`
	VoiceRules           map[string]consistency.VoiceRule `yaml:"voice_rules" validate:"dive"`
}

type ServerConfig struct {
	Addr   string `yaml:"addr" env:"CONTINUITY_ADDR" validate:"required,hostname_port"`
	Limits Limits `yaml:"limits" validate:"required"`
}

// TelemetryConfig enables trace export when an OTLP endpoint is set.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" env:"OTEL_SERVICE_NAME" validate:"required"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"CONTINUITY_LOG_LEVEL" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" env:"CONTINUITY_LOG_FORMAT" validate:"required,oneof=text json"`
}

// DefaultConfig returns a valid in-memory configuration carrying the stock policy.
func DefaultConfig() *Config {
	p := consistency.DefaultPolicy()
	return &Config{
		Storage: StorageConfig{Driver: "memory"},
		Scoring: ScoringConfig{
			Weights:        p.Weights,
			WarningPenalty: p.WarningPenalty,
			ValidThreshold: p.ValidThreshold,
			DegradedScore:  p.DegradedScore,
		},
		Corrections: CorrectionsConfig{
			AutomaticThreshold: p.AutomaticThreshold,
			ThemeConfidenceCap: p.ThemeConfidenceCap,
			NearMatch:          p.NearMatch,
		},
		Cache: CacheConfig{MaxEntries: 1000, TTL: 10 * time.Minute},
		Server: ServerConfig{
			Addr:   ":8080",
			Limits: DefaultLimits(),
		},
		Telemetry: TelemetryConfig{ServiceName: "continuity"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration in order: defaults, the YAML file at path (if
// any), then environment variables, including those from a local .env file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(expandTilde(path))
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Storage.Path = expandTilde(cfg.Storage.Path)
	cfg.Continuity.StoryBible = expandTilde(cfg.Continuity.StoryBible)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandTilde expands a leading ~/ to the user's home directory.
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Policy builds the acceptance policy the engine runs with.
func (c *Config) Policy() consistency.Policy {
	p := consistency.Policy{
		Weights:              c.Scoring.Weights,
		WarningPenalty:       c.Scoring.WarningPenalty,
		ValidThreshold:       c.Scoring.ValidThreshold,
		DegradedScore:        c.Scoring.DegradedScore,
		AutomaticThreshold:   c.Corrections.AutomaticThreshold,
		ThemeConfidenceCap:   c.Corrections.ThemeConfidenceCap,
		NearMatch:            c.Corrections.NearMatch,
		EmotionalTransitions: c.Continuity.EmotionalTransitions,
		VoiceRules:           c.Continuity.VoiceRules,
	}
	if p.EmotionalTransitions == nil {
		p.EmotionalTransitions = consistency.DefaultEmotionalTransitions()
	}
	if p.VoiceRules == nil {
		p.VoiceRules = consistency.DefaultVoiceRules()
	}
	return p
}
