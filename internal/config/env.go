package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays EASEMAIL_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("EASEMAIL_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("EASEMAIL_SNAPSHOT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SnapshotLimit = n
		}
	}
	if v := os.Getenv("EASEMAIL_STREAM_KEEPALIVE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.KeepAliveMs = n
		}
	}
	if v := os.Getenv("EASEMAIL_STREAM_BUF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 65536 {
				n = 65536
			}
			cfg.Stream.BufferLen = n
		}
	}
	if v := os.Getenv("EASEMAIL_STREAM_REPLAY_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.ReplayBatch = n
		}
	}
	if v := os.Getenv("EASEMAIL_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PayloadMaxBytes = n
		}
	}
	// EASEMAIL_AUTH_TOKENS: comma-separated token:account[:user] triples.
	if v := os.Getenv("EASEMAIL_AUTH_TOKENS"); v != "" {
		cfg.AuthTokens = nil
		for _, entry := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
			if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
				continue
			}
			ts := TokenScope{Token: parts[0], AccountID: parts[1]}
			if len(parts) == 3 {
				ts.UserID = parts[2]
			}
			cfg.AuthTokens = append(cfg.AuthTokens, ts)
		}
	}
}
