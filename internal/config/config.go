// Package config loads the settler's environment configuration from a .env
// file and the process environment.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
)

// Config is the settler's startup configuration.
type Config struct {
	Port int

	RPCURL    string
	RPCWSSURL string

	ContractAddress string

	SettlerPrivateKey string

	DatabaseURL string

	// ContractDeployBlock seeds the startup backfill pass when the store
	// has no prior events.
	ContractDeployBlock uint64
}

// LowBalanceThresholdWei is the native-unit threshold below which a startup
// warning is emitted.
var LowBalanceThresholdWei = new(big.Int).Mul(big.NewInt(1e16), big.NewInt(1)) // 0.01 ETH in wei

// Load reads a .env file if present, then parses environment variables into
// a Config. It only fails for values the service cannot run without; a
// missing signing key or contract address is treated as a fatal
// misconfiguration rather than something to default around.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:              envInt("PORT", 8080),
		RPCURL:            os.Getenv("RPC_URL"),
		RPCWSSURL:         os.Getenv("RPC_WSS_URL"),
		ContractAddress:   os.Getenv("CONTRACT_ADDRESS"),
		SettlerPrivateKey: os.Getenv("SETTLER_PRIVATE_KEY"),
		DatabaseURL:       envString("DATABASE_URL", ""),
	}

	if deployBlockStr := os.Getenv("CONTRACT_DEPLOY_BLOCK"); deployBlockStr != "" {
		if parsed, err := strconv.ParseUint(deployBlockStr, 10, 64); err == nil {
			cfg.ContractDeployBlock = parsed
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RPCURL == "" && c.RPCWSSURL == "" {
		return fmt.Errorf("config: RPC_URL or RPC_WSS_URL is required")
	}
	if c.RPCWSSURL == "" {
		// The stream provider needs a WebSocket-capable endpoint; fall back
		// to the same URL as the request/response provider if that is all
		// that was given.
		c.RPCWSSURL = c.RPCURL
	}
	if c.RPCURL == "" {
		c.RPCURL = c.RPCWSSURL
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("config: CONTRACT_ADDRESS is required")
	}
	if c.SettlerPrivateKey == "" {
		return fmt.Errorf("config: SETTLER_PRIVATE_KEY is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database connection string is required")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
