package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-upload/internal/config"
)

// TestConfigSubcommands checks the structure of each config subcommand
func TestConfigSubcommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		use  string
	}{
		{"init", newConfigInitCmd(), "init"},
		{"show", newConfigShowCmd(), "show"},
		{"test", newConfigTestCmd(), "test"},
		{"path", newConfigPathCmd(), "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.Use != tt.use {
				t.Errorf("Expected Use='%s', got '%s'", tt.use, tt.cmd.Use)
			}
			if tt.cmd.Short == "" {
				t.Error("Short description is empty")
			}
			if tt.cmd.RunE == nil {
				t.Error("RunE function is nil")
			}
		})
	}

	if f := newConfigInitCmd().Flags().Lookup("force"); f == nil {
		t.Error("Expected --force flag on init")
	}
}

func initPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml"), filepath.Join(dir, "credentials")
}

func TestRunConfigInit_Blob(t *testing.T) {
	cfgPath, credPath := initPaths(t)
	// backend, url, prefix, concurrency (default), stall (default), proxy
	in := strings.NewReader("blob\nmem://\nuploads\n\n\nno-proxy\n")
	var out bytes.Buffer

	if err := runConfigInit(in, &out, cfgPath, credPath, "", false); err != nil {
		t.Fatalf("runConfigInit failed: %v\n%s", err, out.String())
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Type != config.BackendBlob {
		t.Errorf("Expected backend blob, got %s", cfg.Backend.Type)
	}
	if cfg.Backend.Blob.URL != "mem://" || cfg.Backend.Blob.Prefix != "uploads" {
		t.Errorf("Expected mem:// with prefix uploads, got %+v", cfg.Backend.Blob)
	}
	if cfg.Upload.Concurrency != 10 {
		t.Errorf("Expected default concurrency 10, got %d", cfg.Upload.Concurrency)
	}
	if cfg.Proxy.Mode != "no-proxy" {
		t.Errorf("Expected proxy mode no-proxy, got %s", cfg.Proxy.Mode)
	}
	if _, err := os.Stat(credPath); err != nil {
		t.Errorf("Expected credentials file: %v", err)
	}
	if !strings.Contains(out.String(), "Configuration saved to") {
		t.Errorf("Expected confirmation, got:\n%s", out.String())
	}
}

func TestRunConfigInit_RESTRequiresAPIKey(t *testing.T) {
	cfgPath, credPath := initPaths(t)
	// backend, platform URL (default), empty key, key, concurrency, stall, proxy
	in := strings.NewReader("rest\n\n\nsecret-key\n\n\nsystem\n")
	var out bytes.Buffer

	if err := runConfigInit(in, &out, cfgPath, credPath, "work", false); err != nil {
		t.Fatalf("runConfigInit failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "API key is required") {
		t.Errorf("Expected a retry prompt, got:\n%s", out.String())
	}

	creds, err := config.LoadCredentials(credPath, "work")
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.APIKey != "secret-key" {
		t.Errorf("Expected api key to be saved, got %q", creds.APIKey)
	}
	if creds.PlatformURL != "https://platform.rescale.com" {
		t.Errorf("Expected default platform URL, got %s", creds.PlatformURL)
	}
}

func TestRunConfigInit_RetriesInvalidNumbers(t *testing.T) {
	cfgPath, credPath := initPaths(t)
	in := strings.NewReader("blob\nmem://\n\n0\n5\nsoon\n1m\nno-proxy\n")
	var out bytes.Buffer

	if err := runConfigInit(in, &out, cfgPath, credPath, "", false); err != nil {
		t.Fatalf("runConfigInit failed: %v\n%s", err, out.String())
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Upload.Concurrency != 5 {
		t.Errorf("Expected concurrency 5, got %d", cfg.Upload.Concurrency)
	}
	if cfg.Upload.StallTimeout.Duration != time.Minute {
		t.Errorf("Expected stall timeout 1m, got %s", cfg.Upload.StallTimeout)
	}
}

func TestRunConfigInit_ExistingWithoutForce(t *testing.T) {
	cfgPath, credPath := initPaths(t)
	if err := config.Save(config.Default(), cfgPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var out bytes.Buffer
	if err := runConfigInit(strings.NewReader(""), &out, cfgPath, credPath, "", false); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("Expected existing-config message, got:\n%s", out.String())
	}
}

func TestRunConfigInit_EOF(t *testing.T) {
	cfgPath, credPath := initPaths(t)
	var out bytes.Buffer
	if err := runConfigInit(strings.NewReader("blob\n"), &out, cfgPath, credPath, "", false); err == nil {
		t.Error("Expected an error when input ends early")
	}
	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Error("Expected no config file after aborted init")
	}
}

func TestSecretStatus(t *testing.T) {
	if got := secretStatus(""); got != "<not set>" {
		t.Errorf("Expected <not set>, got %s", got)
	}
	if got := secretStatus("abcdef"); got != "<set (6 chars)>" {
		t.Errorf("Expected <set (6 chars)>, got %s", got)
	}
}

func TestPrintConfig_HidesSecrets(t *testing.T) {
	cfg := config.Default()
	creds := config.NewCredentials("")
	creds.APIKey = "super-secret"

	var out bytes.Buffer
	printConfig(&out, cfg, creds, "/nonexistent/config.toml", "/nonexistent/credentials")

	if strings.Contains(out.String(), "super-secret") {
		t.Error("API key leaked into config show output")
	}
	for _, want := range []string{"Concurrency:        10", "Hard Timeout:       3m0s", "file does not exist"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}
