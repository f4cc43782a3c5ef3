package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"lottery/internal/models"
	"lottery/internal/session"
)

// Store backends.
const (
	StoreIPFS   = "ipfs"
	StoreMemory = "memory"
)

// Config is read from the environment at startup.
type Config struct {
	HTTPAddr        string        `env:"LOTTERY_HTTP_ADDR"             envDefault:":8080"`
	RequiredNetwork string        `env:"LOTTERY_REQUIRED_NETWORK"      envDefault:"0xaa36a7"`
	Store           string        `env:"LOTTERY_STORE"                 envDefault:"ipfs"`
	IPFSAPIURL      string        `env:"LOTTERY_IPFS_API_URL"          envDefault:"http://127.0.0.1:5001"`
	IPFSTimeout     time.Duration `env:"LOTTERY_IPFS_TIMEOUT"          envDefault:"30s"`
	MountUploads    bool          `env:"LOTTERY_MOUNT_UPLOADS"         envDefault:"true"`
	ConfirmTimeout  time.Duration `env:"LOTTERY_CONFIRM_TIMEOUT"       envDefault:"2m"`
	ConfirmPoll     time.Duration `env:"LOTTERY_CONFIRM_POLL_INTERVAL" envDefault:"1s"`
	SubmitAttempts  uint          `env:"LOTTERY_SUBMIT_ATTEMPTS"       envDefault:"3"`
	SubmitBackoff   time.Duration `env:"LOTTERY_SUBMIT_BACKOFF"        envDefault:"250ms"`
	SessionIdle     time.Duration `env:"LOTTERY_SESSION_IDLE_TIMEOUT"  envDefault:"1h"`
	JanitorInterval time.Duration `env:"LOTTERY_JANITOR_INTERVAL"      envDefault:"10m"`
	LogVerbose      bool          `env:"LOTTERY_LOG_VERBOSE"           envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	network, err := c.Network()
	if err != nil {
		return fmt.Errorf("LOTTERY_REQUIRED_NETWORK: %w", err)
	}
	if _, ok := session.Lookup(network); !ok {
		return fmt.Errorf("LOTTERY_REQUIRED_NETWORK: no descriptor for network %s", network)
	}
	switch c.Store {
	case StoreIPFS, StoreMemory:
	default:
		return fmt.Errorf("LOTTERY_STORE: unknown backend %q", c.Store)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("LOTTERY_CONFIRM_TIMEOUT must be positive")
	}
	if c.ConfirmPoll <= 0 {
		return fmt.Errorf("LOTTERY_CONFIRM_POLL_INTERVAL must be positive")
	}
	if c.SubmitAttempts == 0 {
		return fmt.Errorf("LOTTERY_SUBMIT_ATTEMPTS must be at least 1")
	}
	return nil
}

// Network returns the normalized required network id.
func (c Config) Network() (models.NetworkID, error) {
	return models.ChainID(c.RequiredNetwork)
}
