package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"agent": {
		"binary": "my-agent",
		"args": ["--model", "${{ .Env.CTX_MODEL }}"]
	},
	"monitor": {
		"scan_limit": 25
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CTX_MODEL", "test-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Agent.Binary != "my-agent" {
		t.Errorf("expected binary my-agent, got %s", cfg.Agent.Binary)
	}
	if len(cfg.Agent.Args) != 2 || cfg.Agent.Args[1] != "test-model" {
		t.Errorf("expected args [--model test-model], got %v", cfg.Agent.Args)
	}
	if cfg.Monitor.ScanLimit != 25 {
		t.Errorf("expected scan_limit 25, got %d", cfg.Monitor.ScanLimit)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Agent.Binary != "claude" {
		t.Errorf("expected default binary claude, got %s", cfg.Agent.Binary)
	}
	if cfg.Monitor.ScanLimit != 10 {
		t.Errorf("expected default scan_limit 10, got %d", cfg.Monitor.ScanLimit)
	}
	if cfg.Paths.LogsDir == "" {
		t.Error("expected a default logs dir")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
