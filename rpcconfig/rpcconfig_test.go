package rpcconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsZeroFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if f.ServerURL != "" {
		t.Errorf("expected empty ServerURL, got %q", f.ServerURL)
	}
}

func TestLoad_ParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
server_url = "wss://example.test/rpc"
request_timeout_ms = 5000
try_reconnecting_forever = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if f.ServerURL != "wss://example.test/rpc" {
		t.Errorf("unexpected ServerURL: %q", f.ServerURL)
	}
	if !f.TryReconnectingForever {
		t.Error("expected TryReconnectingForever to be true")
	}

	cfg, err := f.RPCConfig()
	if err != nil {
		t.Fatalf("RPCConfig() error: %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s request timeout, got %s", cfg.RequestTimeout)
	}
}

func TestRPCConfig_FallsBackToDefaults(t *testing.T) {
	f := &File{}
	cfg, err := f.RPCConfig()
	if err != nil {
		t.Fatalf("RPCConfig() error: %v", err)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("expected default 60s request timeout, got %s", cfg.RequestTimeout)
	}
	if !cfg.ConcurrentServerRequest {
		t.Error("expected default ConcurrentServerRequest=true to survive an unset file field")
	}
}

func TestRPCConfig_EnvOverridesRequestTimeout(t *testing.T) {
	t.Setenv(timeoutEnvVar, "1500")

	f := &File{RequestTimeoutMs: 5000}
	cfg, err := f.RPCConfig()
	if err != nil {
		t.Fatalf("RPCConfig() error: %v", err)
	}
	if cfg.RequestTimeout != 1500*time.Millisecond {
		t.Errorf("expected env override to win, got %s", cfg.RequestTimeout)
	}
}

func TestRPCConfig_ConcurrentServerRequestFalseIsRespected(t *testing.T) {
	v := false
	f := &File{ConcurrentServerRequest: &v}
	cfg, err := f.RPCConfig()
	if err != nil {
		t.Fatalf("RPCConfig() error: %v", err)
	}
	if cfg.ConcurrentServerRequest {
		t.Error("expected explicit false to override the default true")
	}
}
