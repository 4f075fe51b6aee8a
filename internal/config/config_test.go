package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("expected 5m cache TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.SweepCeiling != 100 {
		t.Fatalf("expected sweep ceiling 100, got %d", cfg.Cache.SweepCeiling)
	}
	if len(cfg.Candidates.SeedFIDs) == 0 {
		t.Fatal("expected non-empty seed FID list")
	}
	if cfg.Candidates.SeedFIDs[0] != 2 {
		t.Fatalf("unexpected first seed FID %d", cfg.Candidates.SeedFIDs[0])
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEYNAR_API_KEY", "env-key")
	t.Setenv("CANDIDATES_CACHE_TTL", "30s")

	cfg := Default()
	if err := cfg.ResolveEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Neynar.APIKey != "env-key" {
		t.Fatalf("expected env api key, got %q", cfg.Neynar.APIKey)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("expected 30s TTL from env, got %v", cfg.Cache.TTL)
	}
}

func TestRedirectURIDerivedFromAppURL(t *testing.T) {
	cfg := Default()
	cfg.Server.AppURL = "https://app.example"
	if err := cfg.ResolveEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.RedirectURI != "https://app.example/auth/neynar/callback" {
		t.Fatalf("unexpected redirect uri %q", cfg.Auth.RedirectURI)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "basefriends.yaml")
	want := Default()
	want.Server.Addr = ":9999"
	if err := Save(path, want); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Server.Addr != ":9999" {
		t.Fatalf("expected saved addr, got %q", got.Server.Addr)
	}
}
