package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/cloudx-io/blockauction/auction"
)

// Config is the enclave server configuration, read entirely from the
// environment at startup. Missing required values abort startup: the enclave
// has no interactive way to recover from a bad deployment.
type Config struct {
	VsockPort     uint32
	MaxWorkers    int
	AttestTimeout time.Duration
	DatabaseURL   string // empty means in-memory storage
	ChainConfigs  map[uint64]auction.ChainConfig
	WakeInterval  time.Duration
	ConnReadLimit time.Duration
}

const (
	defaultVsockPort     = 5000
	defaultAttestTimeout = 5 * time.Second
	defaultConnReadLimit = 30 * time.Second
)

// LoadConfig reads and validates the environment. Required:
// ENCLAVE_MAX_WORKERS, CHAIN_CONFIG_PATH. Optional: ENCLAVE_VSOCK_PORT,
// ATTESTATION_TIMEOUT_MS, DATABASE_URL, WAKE_INTERVAL_MS.
func LoadConfig() (*Config, error) {
	maxWorkers, err := getRequiredEnvInt("ENCLAVE_MAX_WORKERS")
	if err != nil {
		return nil, err
	}
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("ENCLAVE_MAX_WORKERS must be positive, got %d", maxWorkers)
	}

	chainConfigPath := os.Getenv("CHAIN_CONFIG_PATH")
	if chainConfigPath == "" {
		return nil, fmt.Errorf("required environment variable CHAIN_CONFIG_PATH is not set")
	}
	chains, err := loadChainConfigs(chainConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		VsockPort:     defaultVsockPort,
		MaxWorkers:    maxWorkers,
		AttestTimeout: defaultAttestTimeout,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ChainConfigs:  chains,
		WakeInterval:  auction.DefaultWakeInterval,
		ConnReadLimit: defaultConnReadLimit,
	}

	if port := os.Getenv("ENCLAVE_VSOCK_PORT"); port != "" {
		p, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value for ENCLAVE_VSOCK_PORT: %s", port)
		}
		cfg.VsockPort = uint32(p)
	}
	if ms := os.Getenv("ATTESTATION_TIMEOUT_MS"); ms != "" {
		v, err := strconv.Atoi(ms)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid value for ATTESTATION_TIMEOUT_MS: %s", ms)
		}
		cfg.AttestTimeout = time.Duration(v) * time.Millisecond
	}
	if ms := os.Getenv("WAKE_INTERVAL_MS"); ms != "" {
		v, err := strconv.Atoi(ms)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid value for WAKE_INTERVAL_MS: %s", ms)
		}
		cfg.WakeInterval = time.Duration(v) * time.Millisecond
	}

	return cfg, nil
}

// chainConfigFile is the on-disk shape of the chain configuration: JSON keys
// are decimal chain ids.
type chainConfigFile struct {
	Chains map[string]struct {
		MaxBlockspace uint64   `json:"max_blockspace"`
		Sellers       []string `json:"sellers"`
	} `json:"chains"`
}

func loadChainConfigs(path string) (map[uint64]auction.ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config: %w", err)
	}

	var file chainConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain config: %w", err)
	}
	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("chain config %s defines no chains", path)
	}

	chains := make(map[uint64]auction.ChainConfig, len(file.Chains))
	for idStr, c := range file.Chains {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in chain config", idStr)
		}
		if c.MaxBlockspace == 0 {
			return nil, fmt.Errorf("chain %d has zero max_blockspace", id)
		}
		if len(c.Sellers) == 0 {
			return nil, fmt.Errorf("chain %d has no registered sellers", id)
		}
		chains[id] = auction.ChainConfig{MaxBlockspace: c.MaxBlockspace, Sellers: c.Sellers}
	}
	return chains, nil
}

// getRequiredEnvInt parses a required integer environment variable.
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}
