package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/entropass/pkg/entropy"
	"github.com/teslashibe/entropass/pkg/password"
)

func TestDefaultProfiles(t *testing.T) {
	cli := Default(ProfileCLI)
	if cli.Capture.MaxIndex != 5 || cli.Capture.Retries != 5 || !cli.Capture.Preview {
		t.Errorf("unexpected CLI capture defaults %+v", cli.Capture)
	}

	srv := Default(ProfileServer)
	if srv.Capture.MaxIndex != 3 || srv.Capture.Retries != 3 || srv.Capture.Preview {
		t.Errorf("unexpected server capture defaults %+v", srv.Capture)
	}
	if srv.Server.Port != 5000 || srv.Server.RateLimitMax != 10 || srv.Server.RateLimitWindow != time.Minute {
		t.Errorf("unexpected server defaults %+v", srv.Server)
	}

	for _, cfg := range []*Config{cli, srv} {
		if errs := cfg.Validate(); len(errs) != 0 {
			t.Errorf("defaults should validate, got %v", errs)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(ProfileCLI, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.FrameInterval != 350*time.Millisecond || cfg.Capture.FrameTimeout != 2*time.Second {
		t.Errorf("unexpected timings %+v", cfg.Capture)
	}
	if cfg.Capture.GridMin != 8 || cfg.Capture.GridMax != 12 {
		t.Errorf("unexpected grid range %d-%d", cfg.Capture.GridMin, cfg.Capture.GridMax)
	}
	if cfg.Digest.Hash != string(entropy.SHA512) {
		t.Errorf("unexpected hash %q", cfg.Digest.Hash)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entropass.yaml")
	data := `
capture:
  frame_interval: 100ms
  retries: 2
digest:
  hash: blake2b-512
password:
  length: 20
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(New(ProfileServer, path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.FrameInterval != 100*time.Millisecond || cfg.Capture.Retries != 2 {
		t.Errorf("file values not applied: %+v", cfg.Capture)
	}
	if cfg.Capture.MaxIndex != 3 {
		t.Errorf("unset keys keep profile defaults, got max_index %d", cfg.Capture.MaxIndex)
	}
	if cfg.Digest.Hash != "blake2b-512" || cfg.Password.Length != 20 {
		t.Errorf("unexpected digest/password %+v %+v", cfg.Digest, cfg.Password)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(ProfileCLI, filepath.Join(t.TempDir(), "nope.yaml"))); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENTROPASS_CAPTURE_RETRIES", "7")
	t.Setenv("ENTROPASS_DIGEST_HASH", "sha3-512")
	t.Setenv("PORT", "8080")

	cfg, err := Load(New(ProfileServer, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.Retries != 7 {
		t.Errorf("expected retries 7, got %d", cfg.Capture.Retries)
	}
	if cfg.Digest.Hash != "sha3-512" {
		t.Errorf("expected sha3-512, got %q", cfg.Digest.Hash)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected PORT to set the port, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"grid", func(c *Config) { c.Capture.GridMin, c.Capture.GridMax = 9, 4 }, "grid range"},
		{"retries", func(c *Config) { c.Capture.Retries = 0 }, "capture.retries"},
		{"timeout", func(c *Config) { c.Capture.FrameTimeout = time.Millisecond }, "frame_timeout"},
		{"length", func(c *Config) { c.Password.Length = password.MaxLength + 1 }, "password.length"},
		{"groups", func(c *Config) { c.Password.Groups = "emoji" }, "password.groups"},
		{"hash", func(c *Config) { c.Digest.Hash = "md5" }, "digest.hash"},
		{"salt", func(c *Config) { c.Digest.SaltSize = 8 }, "salt_size"},
		{"resolution", func(c *Config) { c.Capture.Resolution = "8k" }, "unknown resolution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(ProfileCLI)
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || !strings.Contains(errs[0], tt.want) {
				t.Errorf("expected one error mentioning %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("ENTROPASS_DIGEST_SALT_SIZE", "4")
	_, err := Load(New(ProfileCLI, ""))

	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 1 {
		t.Fatalf("expected one validation error, got %v", err)
	}
}

func TestDerivedOptions(t *testing.T) {
	cfg := Default(ProfileServer)
	cfg.Password.Required = "digits"

	opts := cfg.PipelineOptions()
	if opts.Open.MaxIndex != 3 || opts.Open.Retries != 3 || opts.GridMax != 12 {
		t.Errorf("unexpected pipeline options %+v", opts)
	}

	req := cfg.Request(12)
	if req.Length != 12 || len(req.Allowed) != 4 || len(req.Required) != 1 || req.Required[0] != password.Digits {
		t.Errorf("unexpected request %+v", req)
	}

	b, err := cfg.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder failed: %v", err)
	}
	if b.Algorithm() != entropy.SHA512 {
		t.Errorf("unexpected algorithm %q", b.Algorithm())
	}
}
