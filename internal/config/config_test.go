package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.SnapshotLimit != 100 {
		t.Fatalf("snapshot limit default: %d", cfg.SnapshotLimit)
	}
	if cfg.Stream.KeepAliveMs != 15000 || cfg.Stream.BufferLen != 256 {
		t.Fatalf("unexpected stream defaults: %+v", cfg.Stream)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"httpAddr":":9999","snapshotLimit":50,"authTokens":[{"token":"t1","accountId":"a1","userId":"u1"}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.SnapshotLimit != 50 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	// untouched fields keep defaults
	if cfg.Stream.KeepAliveMs != 15000 {
		t.Fatalf("defaults lost on load: %+v", cfg.Stream)
	}
	if len(cfg.AuthTokens) != 1 || cfg.AuthTokens[0].AccountID != "a1" {
		t.Fatalf("auth tokens not loaded: %+v", cfg.AuthTokens)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("EASEMAIL_HTTP_ADDR", ":7070")
	t.Setenv("EASEMAIL_STREAM_KEEPALIVE_MS", "30000")
	t.Setenv("EASEMAIL_AUTH_TOKENS", "tok1:acct1:user1, tok2:acct2")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("http addr: %s", cfg.HTTPAddr)
	}
	if cfg.Stream.KeepAliveMs != 30000 {
		t.Fatalf("keepalive: %d", cfg.Stream.KeepAliveMs)
	}
	if len(cfg.AuthTokens) != 2 {
		t.Fatalf("tokens: %+v", cfg.AuthTokens)
	}
	if cfg.AuthTokens[0].UserID != "user1" || cfg.AuthTokens[1].UserID != "" {
		t.Fatalf("token scopes: %+v", cfg.AuthTokens)
	}
}
