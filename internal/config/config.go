// Package config loads the daemon configuration from YAML.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	DataDir       string `yaml:"dataDir"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`

	NodeURL     string `yaml:"nodeUrl"`
	RelayHost   string `yaml:"relayHost"`
	EscrowURL   string `yaml:"escrowUrl"`
	EscrowAppID string `yaml:"escrowAppId"`
	// SignerSeed is the hex-encoded 32-byte signing seed.
	SignerSeed string `yaml:"signerSeed"`

	Epochs       uint64  `yaml:"epochs"`
	SplitSeconds float64 `yaml:"splitSeconds"`
	Deletable    bool    `yaml:"deletable"`
	EncodingType string  `yaml:"encodingType"`

	// Pricing inputs for the cost estimator.
	RatePerByteEpoch uint64 `yaml:"ratePerByteEpoch"`
	ExchangeNum      uint64 `yaml:"exchangeNum"`
	ExchangeDen      uint64 `yaml:"exchangeDen"`
	BufferBps        uint64 `yaml:"bufferBps"`

	// HTTP service settings.
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "suistream-data"
	}
	if c.Epochs == 0 {
		c.Epochs = 5
	}
	if c.SplitSeconds == 0 {
		c.SplitSeconds = 10
	}
	if c.ExchangeNum == 0 {
		c.ExchangeNum = 1
	}
	if c.ExchangeDen == 0 {
		c.ExchangeDen = 1
	}
	if c.Port == 0 {
		c.Port = 4242
	}
}

func (c *Config) validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("config: nodeUrl is required")
	}
	if c.RelayHost == "" {
		return fmt.Errorf("config: relayHost is required")
	}
	if c.EscrowURL == "" {
		return fmt.Errorf("config: escrowUrl is required")
	}
	if c.SignerSeed == "" {
		return fmt.Errorf("config: signerSeed is required")
	}
	if _, err := c.SeedBytes(); err != nil {
		return err
	}
	return nil
}

// SeedBytes decodes the hex signing seed.
func (c *Config) SeedBytes() ([]byte, error) {
	seed, err := hex.DecodeString(c.SignerSeed)
	if err != nil {
		return nil, fmt.Errorf("config: signerSeed is not valid hex: %w", err)
	}
	if len(seed) != 32 {
		return nil, fmt.Errorf("config: signerSeed must be 32 bytes, got %d", len(seed))
	}
	return seed, nil
}
