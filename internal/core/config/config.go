package config

import (
	"time"

	redisclient "github.com/vietddude/chain-observer/internal/infra/redis"
	"github.com/vietddude/chain-observer/internal/infra/storage/postgres"
)

// Checkpoint store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreBackend  = "backend"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Chain      ChainConfig        `yaml:"chain"`
	Observer   ObserverConfig     `yaml:"observer"`
	Backend    BackendConfig      `yaml:"backend"`
	Alert      AlertConfig        `yaml:"alert"`
	Checkpoint CheckpointConfig   `yaml:"checkpoint"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for the Tendermint RPC node(s).
type ChainConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	// GRPCURL is only dialed for connectivity reporting in /health/detailed.
	GRPCURL   string        `yaml:"grpc_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	PerPage   int           `yaml:"per_page"`
	// Base64Events decodes tx_result event attributes (Tendermint 0.34).
	Base64Events bool `yaml:"base64_events"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ObserverConfig drives the run loop.
type ObserverConfig struct {
	CheckpointName  string           `yaml:"checkpoint_name"`
	InitialHeight   int64            `yaml:"initial_height"`
	MaxBlocksPerRun int64            `yaml:"max_blocks_per_run"`
	ScanInterval    time.Duration    `yaml:"scan_interval"`
	RunTimeout      time.Duration    `yaml:"run_timeout"`
	MinterAddress   string           `yaml:"minter_address"`
	Filters         FiltersConfig    `yaml:"filters"`
	EventTypes      EventTypesConfig `yaml:"event_types"`
}

// FiltersConfig overrides the Tendermint queries of the five scans.
// Empty entries fall back to the built-in queries.
type FiltersConfig struct {
	Marketplace   string `yaml:"marketplace"`
	NftModule     string `yaml:"nft_module"`
	FundsReceived string `yaml:"funds_received"`
	Refund        string `yaml:"refund"`
	MintSuccess   string `yaml:"mint_success"`
}

// EventTypesConfig overrides the event type allow-lists.
type EventTypesConfig struct {
	MarketplaceNft        []string `yaml:"marketplace_nft"`
	MarketplaceCollection []string `yaml:"marketplace_collection"`
	NftModuleNft          []string `yaml:"nft_module_nft"`
	NftModuleCollection   []string `yaml:"nft_module_collection"`
}

// BackendConfig points at the marketplace backend API.
type BackendConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AlertConfig holds operator notification settings.
type AlertConfig struct {
	Cooldown        time.Duration `yaml:"cooldown"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	WebhookURL      string        `yaml:"webhook_url"`

	// Email is enabled by EmailSMTPHost.
	EmailSMTPHost string   `yaml:"email_smtp_host"`
	EmailSMTPPort int      `yaml:"email_smtp_port"`
	EmailUsername string   `yaml:"email_username"`
	EmailPassword string   `yaml:"email_password"`
	EmailFrom     string   `yaml:"email_from"`
	EmailTo       []string `yaml:"email_to"`
}

// CheckpointConfig selects where the last checked height lives.
type CheckpointConfig struct {
	Store string `yaml:"store"` // postgres, memory, backend
}
