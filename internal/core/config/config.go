package config

import (
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
	redisclient "github.com/vietddude/botrelay/internal/infra/redis"
	"github.com/vietddude/botrelay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Transport TransportConfig    `yaml:"transport"`
	Actors    []ActorConfig      `yaml:"actors"`
	Dispatch  DispatchConfig     `yaml:"dispatch"`
	Media     MediaConfig        `yaml:"media"`
	Cache     CacheConfig        `yaml:"cache"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = gRPC health disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TransportConfig holds settings for the chat bridge connection.
type TransportConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// ActorConfig holds settings for one upstream bot. Order in the list is priority order.
type ActorConfig struct {
	ID                domain.ActorID `yaml:"id"`
	TotalTimeout      time.Duration  `yaml:"total_timeout"`
	IdleThreshold     time.Duration  `yaml:"idle_threshold"`
	NameSearchTimeout time.Duration  `yaml:"name_search_timeout"`
	MaxMessages       int            `yaml:"max_messages"` // 0 = unbounded
	RateLimitMarkers  []string       `yaml:"rate_limit_markers"`
}

// DispatchConfig holds failover and classification settings.
type DispatchConfig struct {
	BlockDuration     time.Duration `yaml:"block_duration"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`
	FormatMarkers     []string      `yaml:"format_markers"`
	PromotedFields    []string      `yaml:"promoted_fields"`
	Brand             string        `yaml:"brand"` // replaces the upstream bot's tag in replies
}

// MediaConfig holds settings for attachment storage.
type MediaConfig struct {
	Dir       string        `yaml:"dir"`
	PublicURL string        `yaml:"public_url"`
	Retention time.Duration `yaml:"retention"` // negative = keep forever
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}
