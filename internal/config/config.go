// Package config loads service configuration from a JSON file with
// EASEMAIL_* environment overlays.
package config

import (
	"encoding/json"
	"os"
)

// TokenScope binds a pre-shared API token to the account/user it acts as.
type TokenScope struct {
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`
}

// StreamDefaults captures tunables for live subscriptions.
type StreamDefaults struct {
	// KeepAliveMs is the fixed interval between SSE keepalive comments.
	KeepAliveMs int `json:"keepAliveMs"`
	// BufferLen is the bounded per-subscription outbound buffer length.
	BufferLen int `json:"bufferLen"`
	// ReplayBatch is the page size used when replaying history on resume.
	ReplayBatch int `json:"replayBatch"`
}

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr        string         `json:"httpAddr"`
	SnapshotLimit   int            `json:"snapshotLimit"`
	Stream          StreamDefaults `json:"stream"`
	AuthTokens      []TokenScope   `json:"authTokens"`
	PayloadMaxBytes int            `json:"payloadMaxBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:      ":8787",
		SnapshotLimit: 100,
		Stream: StreamDefaults{
			KeepAliveMs: 15000,
			BufferLen:   256,
			ReplayBatch: 128,
		},
		PayloadMaxBytes: 256 << 10,
	}
}

// Load reads configuration from a JSON file. An empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
