package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// Default actors observed upstream: a primary bot and a public backup.
var defaultActors = []ActorConfig{
	{
		ID:                "@LEDERDATA_OFC_BOT",
		TotalTimeout:      35 * time.Second,
		IdleThreshold:     4 * time.Second,
		NameSearchTimeout: 70 * time.Second,
	},
	{
		ID:                "@lederdata_publico_bot",
		TotalTimeout:      50 * time.Second,
		IdleThreshold:     5 * time.Second,
		NameSearchTimeout: 70 * time.Second,
	},
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Transport.HandshakeTimeout == 0 {
		cfg.Transport.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Transport.RequestTimeout == 0 {
		cfg.Transport.RequestTimeout = 15 * time.Second
	}

	if len(cfg.Actors) == 0 {
		cfg.Actors = append([]ActorConfig(nil), defaultActors...)
	}
	for i := range cfg.Actors {
		a := &cfg.Actors[i]
		if a.TotalTimeout == 0 {
			a.TotalTimeout = 35 * time.Second
		}
		if a.IdleThreshold == 0 {
			a.IdleThreshold = 4 * time.Second
		}
		if a.NameSearchTimeout == 0 {
			a.NameSearchTimeout = 70 * time.Second
		}
		if len(a.RateLimitMarkers) == 0 {
			a.RateLimitMarkers = []string{"anti-spam", "antispam", "anti spam"}
		}
	}

	if cfg.Dispatch.BlockDuration == 0 {
		cfg.Dispatch.BlockDuration = 6 * time.Hour
	}
	if cfg.Dispatch.RateLimitCooldown == 0 {
		cfg.Dispatch.RateLimitCooldown = 5 * time.Second
	}
	if len(cfg.Dispatch.FormatMarkers) == 0 {
		cfg.Dispatch.FormatMarkers = []string{"usa el formato correcto"}
	}
	if cfg.Dispatch.Brand == "" {
		cfg.Dispatch.Brand = "CONSULTA PE"
	}
	if len(cfg.Dispatch.PromotedFields) == 0 {
		cfg.Dispatch.PromotedFields = []string{"dni", "ruc"}
	}

	if cfg.Media.Dir == "" {
		cfg.Media.Dir = "downloads"
	}
	if cfg.Media.PublicURL == "" {
		cfg.Media.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Media.PublicURL = strings.TrimRight(cfg.Media.PublicURL, "/")
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Media.Retention == 0 {
		cfg.Media.Retention = 5 * time.Minute
		// Cached results link to media files; keep them as long as the entry lives.
		if cfg.Cache.Enabled {
			cfg.Media.Retention = cfg.Cache.TTL
		}
	}
}

// Validate checks the configuration for values the relay cannot run with.
func (c *AppConfig) Validate() error {
	seen := make(map[domain.ActorID]bool, len(c.Actors))
	for i, a := range c.Actors {
		if a.ID == "" {
			return fmt.Errorf("actor %d: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("actor %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if a.IdleThreshold >= a.TotalTimeout {
			return fmt.Errorf("actor %s: idle_threshold must be shorter than total_timeout", a.ID)
		}
	}
	if c.Cache.Enabled && c.Media.Retention > 0 && c.Media.Retention < c.Cache.TTL {
		return fmt.Errorf("media.retention (%s) must not be shorter than cache.ttl (%s)", c.Media.Retention, c.Cache.TTL)
	}
	return nil
}
