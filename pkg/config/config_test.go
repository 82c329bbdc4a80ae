package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".pedrobook.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"model": {"model_name": "qwen2.5:14b"},
		"mail": {"sender_email": "assistant@example.com"},
		"provider": {"api_key": "k-123"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Model.ModelName != "qwen2.5:14b" {
		t.Errorf("model name = %q", cfg.Model.ModelName)
	}
	// Defaults fill unset fields.
	if cfg.Model.ServerURL != "http://localhost:11434" {
		t.Errorf("server url default = %q", cfg.Model.ServerURL)
	}
	if cfg.Model.Temperature != 0.2 {
		t.Errorf("temperature default = %v", cfg.Model.Temperature)
	}
	if cfg.Roster.Path != "roster.yaml" {
		t.Errorf("roster path default = %q", cfg.Roster.Path)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing model name", `{"mail": {"sender_email": "a@b.co"}}`},
		{"missing sender email", `{"model": {"model_name": "m"}}`},
		{"invalid json", `{`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	cfg := &Config{}
	cfg.Provider.APIKey = "from-config"
	key, err := cfg.ResolveAPIKey()
	if err != nil || key != "from-config" {
		t.Errorf("key = %q, err = %v", key, err)
	}

	// Config takes priority over the environment.
	t.Setenv("BOOKING_API_KEY", "from-env")
	key, err = cfg.ResolveAPIKey()
	if err != nil || key != "from-config" {
		t.Errorf("key = %q, err = %v", key, err)
	}

	cfg.Provider.APIKey = ""
	key, err = cfg.ResolveAPIKey()
	if err != nil || key != "from-env" {
		t.Errorf("key = %q, err = %v", key, err)
	}

	t.Setenv("BOOKING_API_KEY", "")
	if _, err := cfg.ResolveAPIKey(); err == nil {
		t.Error("expected error with no key anywhere")
	}
}
