package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Enrichment.BatchSize != 100 {
		t.Errorf("Enrichment.BatchSize = %d", cfg.Enrichment.BatchSize)
	}
	if cfg.Enrichment.PaceInterval != 800*time.Millisecond {
		t.Errorf("Enrichment.PaceInterval = %v", cfg.Enrichment.PaceInterval)
	}
	if cfg.Webhook.SigningSecret != "" {
		t.Errorf("SigningSecret should have no default, got %q", cfg.Webhook.SigningSecret)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
webhook:
  signingSecret: whsec_dGVzdA==
enrichment:
  batchSize: 25
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Webhook.SigningSecret != "whsec_dGVzdA==" {
		t.Errorf("SigningSecret = %q", cfg.Webhook.SigningSecret)
	}
	if cfg.Enrichment.BatchSize != 25 {
		t.Errorf("BatchSize = %d", cfg.Enrichment.BatchSize)
	}
	// Untouched sections keep defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port = %d", cfg.Postgres.Port)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CP_WEBHOOK_SIGNING_SECRET", "from-env")
	t.Setenv("CP_POSTGRES_HOST", "db.internal")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Webhook.SigningSecret != "from-env" {
		t.Errorf("SigningSecret = %q", cfg.Webhook.SigningSecret)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q", cfg.Postgres.Host)
	}
}

func TestValidateFailsFastOnMissingSecret(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected Validate to fail without a signing secret")
	}
	if !strings.Contains(err.Error(), "webhook.signingSecret") {
		t.Errorf("error %q does not name the missing key", err)
	}

	cfg.Webhook.SigningSecret = "whsec_dGVzdA=="
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with secret returned %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
