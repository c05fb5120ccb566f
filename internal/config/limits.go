package config

import "time"

// Limits bounds the load the HTTP server accepts. The rate limit is one token
// bucket shared by every client of the process.
type Limits struct {
	ReadTimeout     time.Duration   `yaml:"read_timeout" env:"CONTINUITY_READ_TIMEOUT" validate:"required,min=1s,max=10m"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" env:"CONTINUITY_WRITE_TIMEOUT" validate:"required,min=1s,max=10m"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" env:"CONTINUITY_SHUTDOWN_TIMEOUT" validate:"required,min=1s,max=5m"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes" env:"CONTINUITY_MAX_BODY_BYTES" validate:"required,min=1024,max=104857600"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" env:"CONTINUITY_RATE_LIMIT_RPM" validate:"required,min=1,max=100000"`
	BurstSize         int `yaml:"burst_size" env:"CONTINUITY_RATE_LIMIT_BURST" validate:"required,min=1,max=10000"`
}

func DefaultLimits() Limits {
	return Limits{
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    4 << 20,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			BurstSize:         60,
		},
	}
}
