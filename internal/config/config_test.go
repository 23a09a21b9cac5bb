package config

import (
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{"PORT", "RPC_URL", "RPC_WSS_URL", "CONTRACT_ADDRESS", "SETTLER_PRIVATE_KEY", "DATABASE_URL", "CONTRACT_DEPLOY_BLOCK"}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when RPC_URL/CONTRACT_ADDRESS/etc are all missing")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("SETTLER_PRIVATE_KEY", "deadbeef")
	t.Setenv("DATABASE_URL", "postgres://localhost/settler")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.RPCWSSURL != cfg.RPCURL {
		t.Errorf("RPCWSSURL should fall back to RPCURL when unset, got %q vs %q", cfg.RPCWSSURL, cfg.RPCURL)
	}
}

func TestLoad_WSSOnlyFallsBackToRPCURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_WSS_URL", "wss://rpc.example.com")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("SETTLER_PRIVATE_KEY", "deadbeef")
	t.Setenv("DATABASE_URL", "postgres://localhost/settler")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPCURL != cfg.RPCWSSURL {
		t.Errorf("RPCURL should fall back to RPCWSSURL when unset, got %q vs %q", cfg.RPCURL, cfg.RPCWSSURL)
	}
}

func TestLoad_MissingPrivateKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("DATABASE_URL", "postgres://localhost/settler")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SETTLER_PRIVATE_KEY is missing")
	}
}

func TestLoad_DeployBlockParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("SETTLER_PRIVATE_KEY", "deadbeef")
	t.Setenv("DATABASE_URL", "postgres://localhost/settler")
	t.Setenv("CONTRACT_DEPLOY_BLOCK", "123456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ContractDeployBlock != 123456 {
		t.Errorf("ContractDeployBlock = %d, want 123456", cfg.ContractDeployBlock)
	}
}
