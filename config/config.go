package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go/rpc"
)

type AppConfig struct {
	RpcEndpoint string            `json:"rpc_endpoint"`
	RpcHeaders  map[string]string `json:"rpc_headers,omitempty"`
	Commitment  string            `json:"commitment"`
	ShowHidden  bool              `json:"show_hidden"`
}

func LoadOrInit(configDir string) (*AppConfig, error) {
	path := filepath.Join(configDir, "app-config.json")

	// Check if exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create default
		cfg := &AppConfig{
			RpcEndpoint: rpc.MainNetBeta_RPC,
			Commitment:  "confirmed",
		}
		if err := Save(configDir, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Load existing
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.RpcEndpoint == "" {
		cfg.RpcEndpoint = rpc.MainNetBeta_RPC
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}

	return &cfg, nil
}

func Save(configDir string, cfg *AppConfig) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "app-config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
