package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	redisclient "github.com/vietddude/chain-observer/internal/infra/redis"
	"github.com/vietddude/chain-observer/internal/infra/storage/postgres"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${ENV} references and
// filling defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Chain.Timeout == 0 {
		c.Chain.Timeout = 15 * time.Second
	}
	if c.Chain.PerPage == 0 {
		c.Chain.PerPage = 100
	}
	for i := range c.Chain.Providers {
		if c.Chain.Providers[i].Name == "" {
			c.Chain.Providers[i].Name = fmt.Sprintf("node-%d", i)
		}
	}

	if c.Observer.CheckpointName == "" {
		c.Observer.CheckpointName = "chain-observer"
	}
	if c.Observer.MaxBlocksPerRun == 0 {
		c.Observer.MaxBlocksPerRun = 10000
	}
	if c.Observer.ScanInterval == 0 {
		c.Observer.ScanInterval = 10 * time.Second
	}
	if c.Observer.RunTimeout == 0 {
		c.Observer.RunTimeout = 5 * time.Minute
	}

	if c.Backend.APIKeyHeader == "" {
		c.Backend.APIKeyHeader = "x-api-key"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}

	if c.Alert.Cooldown == 0 {
		c.Alert.Cooldown = 30 * time.Minute
	}
	if c.Alert.SendTimeout == 0 {
		c.Alert.SendTimeout = 30 * time.Second
	}
	if c.Alert.EmailSMTPHost != "" && c.Alert.EmailSMTPPort == 0 {
		c.Alert.EmailSMTPPort = 587
	}

	if c.Checkpoint.Store == "" {
		if c.Database.URL != "" {
			c.Checkpoint.Store = StorePostgres
		} else {
			c.Checkpoint.Store = StoreMemory
		}
	}

	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = redisclient.DefaultLockTTL
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if len(c.Chain.Providers) == 0 {
		errs = append(errs, errors.New("chain.providers: at least one provider is required"))
	}
	for i, p := range c.Chain.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("chain.providers[%d].url is required", i))
		}
	}
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.Observer.MinterAddress == "" {
		errs = append(errs, errors.New("observer.minter_address is required"))
	}
	if c.Observer.MaxBlocksPerRun < 0 {
		errs = append(errs, errors.New("observer.max_blocks_per_run must be positive"))
	}
	if c.Observer.InitialHeight < 0 {
		errs = append(errs, errors.New("observer.initial_height must not be negative"))
	}

	if c.Alert.EmailSMTPHost != "" && (c.Alert.EmailFrom == "" || len(c.Alert.EmailTo) == 0) {
		errs = append(errs, errors.New("alert.email_from and alert.email_to are required with alert.email_smtp_host"))
	}

	// A durable checkpoint needs a durable purchase ledger, or a restart
	// forgets terminal purchases the checkpoint has already moved past.
	switch c.Checkpoint.Store {
	case StorePostgres, StoreBackend:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for the %s checkpoint store", c.Checkpoint.Store))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("checkpoint.store %q is not one of postgres, memory, backend", c.Checkpoint.Store))
	}

	if c.Database.URL != "" && c.Database.MaxConns > 0 && c.Database.MaxConns < postgres.MinPoolConns {
		errs = append(errs, fmt.Errorf("database.max_conns must be at least %d: a run holds one connection for the checkpoint lease", postgres.MinPoolConns))
	}

	return errors.Join(errs...)
}
