package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"SeiFlow/internal/cache"
	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/mcp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seiflow.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("SEI_PRIVATE_KEY", "")
	t.Setenv("SEI_MCP_SERVER_URL", "")
	path := writeConfig(t, `{"knowledge":{"source":"knowledge.json"},"cache":{"driver":"sqlite"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Server.Address != ":8080" || cfg.LLM.Provider != "groq" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Server, cfg.LLM)
	}
	if cfg.Sei.Network != string(chain.NetworkTestnet) || cfg.Sei.MCP.ServerURL != mcp.DefaultServerURL {
		t.Fatalf("unexpected sei defaults %+v", cfg.Sei)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("data dir not resolved: %s", cfg.Runtime.DataDir)
	}
	if cfg.Knowledge.Source != filepath.Join(dir, "knowledge.json") || cfg.Knowledge.MaxResults != 3 {
		t.Fatalf("knowledge not resolved: %+v", cfg.Knowledge)
	}
	if cfg.Cache.Path != filepath.Join(dir, "data", "cache.db") {
		t.Fatalf("sqlite cache path not defaulted: %s", cfg.Cache.Path)
	}
	if cfg.Storage.TaskStore.Driver != "memory" || cfg.Storage.TaskStore.Retries != 3 || cfg.TaskQueue.Worker != 4 {
		t.Fatalf("unexpected task defaults %+v %+v", cfg.Storage, cfg.TaskQueue)
	}
	if cfg.LLM.APIKeyEnv != "GROQ_API_KEY" {
		t.Fatalf("expected provider key env, got %q", cfg.LLM.APIKeyEnv)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("SEI_PRIVATE_KEY", "0xkey")
	t.Setenv("SEI_MCP_SERVER_URL", "http://mcp.internal:3001")
	t.Setenv("CUSTOM_OPENAI_KEY", "sk-custom")
	path := writeConfig(t, `{
		"llm": {"provider": "openai", "api_key_env": "CUSTOM_OPENAI_KEY", "timeout_seconds": 5},
		"sei": {"network": "sei", "private_key": "from-file", "mcp": {"mode": "tools"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sei.PrivateKey != "0xkey" || cfg.Sei.MCP.ServerURL != "http://mcp.internal:3001" {
		t.Fatalf("env not applied: %+v", cfg.Sei)
	}

	pc := cfg.LLM.ParserConfig()
	if pc.APIKey != "sk-custom" || pc.Timeout != 5*time.Second || pc.Provider != "openai" {
		t.Fatalf("unexpected parser config %+v", pc)
	}

	sc, err := cfg.Sei.ServiceConfig()
	if err != nil {
		t.Fatalf("service config: %v", err)
	}
	if sc.Network != chain.NetworkMainnet || sc.MCP.Mode != mcp.ModeTools || sc.MCP.PrivateKey != "0xkey" {
		t.Fatalf("unexpected service config %+v", sc)
	}
	if sc.CacheTTL != 10*time.Minute {
		t.Fatalf("unexpected cache ttl %s", sc.CacheTTL)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-default-env")
	cfg := LLMConfig{Provider: "anthropic"}
	if got := cfg.ResolveAPIKey(); got != "from-default-env" {
		t.Fatalf("expected provider env, got %q", got)
	}
	cfg.APIKey = "inline"
	if got := cfg.ResolveAPIKey(); got != "inline" {
		t.Fatalf("inline key should win, got %q", got)
	}
}

func TestServiceConfigRejectsUnknownNetwork(t *testing.T) {
	_, err := SeiConfig{Network: "cosmoshub"}.ServiceConfig()
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestLoadOptionalWithoutFile(t *testing.T) {
	t.Setenv("SEI_PRIVATE_KEY", "")
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Cache.Driver != cache.DriverMemory || cfg.Sei.Network != "sei-testnet" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("Load should fail on a missing file")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/seiflow/prod.json")
	if Path() != "/etc/seiflow/prod.json" {
		t.Fatalf("unexpected path %s", Path())
	}
	t.Setenv(EnvConfigPath, "")
	if Path() != DefaultPath {
		t.Fatalf("expected default path")
	}
}

func TestChainsRegistryOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "chains.yaml")
	content := "chains:\n  - id: 1329\n    name: Sei\n    rpc_url: https://rpc.example.org\n"
	if err := os.WriteFile(overlay, []byte(content), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	reg, err := ChainsConfig{OverlayPath: overlay}.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	c, ok := reg.ChainByID(chain.SeiMainnetID)
	if !ok || c.RPCURL != "https://rpc.example.org" {
		t.Fatalf("overlay not applied: %+v", c)
	}
}
