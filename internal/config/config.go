package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures Neynar credentials, server addresses, storage, and the
// candidate pipeline tunables.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Neynar     NeynarConfig     `yaml:"neynar"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Candidates CandidatesConfig `yaml:"candidates"`
	Cache      CacheConfig      `yaml:"cache"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
	// AppURL is the public base URL of the mini-app, used for auth redirects.
	AppURL string `yaml:"appUrl"`
}

type NeynarConfig struct {
	// API key. If empty, read from env NEYNAR_API_KEY.
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseUrl"`
}

type AuthConfig struct {
	ClientID     string `yaml:"clientId"`
	AuthorizeURL string `yaml:"authorizeUrl"`
	TokenURL     string `yaml:"tokenUrl"`
	RedirectURI  string `yaml:"redirectUri"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type CandidatesConfig struct {
	// DefaultLimit is the page size used when the client does not ask for one.
	DefaultLimit int `yaml:"defaultLimit"`
	// FollowingFetch bounds the upstream following/followers lookups.
	FollowingFetch int `yaml:"followingFetch"`
	// SeedFIDs is the static fallback list used when graph lookups run dry.
	SeedFIDs []int64 `yaml:"seedFids"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// SweepCeiling triggers an expired-entry sweep once the cache holds more
	// entries than this.
	SweepCeiling int `yaml:"sweepCeiling"`
}

// envOverrides are environment variables that take precedence over the
// YAML file when set.
type envOverrides struct {
	ServerAddr      string        `env:"BASEFRIENDS_ADDR"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	AppURL          string        `env:"APP_URL"`
	NeynarAPIKey    string        `env:"NEYNAR_API_KEY"`
	NeynarClientID  string        `env:"NEYNAR_CLIENT_ID"`
	NeynarAuthorize string        `env:"NEYNAR_AUTHORIZE_URL"`
	NeynarRedirect  string        `env:"NEYNAR_REDIRECT_URI"`
	DBPath          string        `env:"BASEFRIENDS_DB"`
	CacheTTL        time.Duration `env:"CANDIDATES_CACHE_TTL"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:   ":8080",
			AppURL: "http://localhost:3000",
		},
		Neynar: NeynarConfig{
			BaseURL: "https://api.neynar.com",
		},
		Auth: AuthConfig{
			AuthorizeURL: "https://app.neynar.com/oauth/authorize",
			TokenURL:     "https://app.neynar.com/oauth/token",
		},
		Storage: StorageConfig{DBPath: "./basefriends.db"},
		Candidates: CandidatesConfig{
			DefaultLimit:   10,
			FollowingFetch: 50,
			SeedFIDs:       []int64{2, 3, 5650, 565, 6131, 8090, 12, 602, 999},
		},
		Cache: CacheConfig{
			TTL:          5 * time.Minute,
			SweepCeiling: 100,
		},
	}
}

// ResolveEnv fills in config fields from environment variables.
func (c *Config) ResolveEnv() error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return err
	}
	if ov.ServerAddr != "" {
		c.Server.Addr = ov.ServerAddr
	}
	if ov.MetricsAddr != "" {
		c.Server.MetricsAddr = ov.MetricsAddr
	}
	if ov.AppURL != "" {
		c.Server.AppURL = ov.AppURL
	}
	if ov.NeynarAPIKey != "" {
		c.Neynar.APIKey = ov.NeynarAPIKey
	}
	if ov.NeynarClientID != "" {
		c.Auth.ClientID = ov.NeynarClientID
	}
	if ov.NeynarAuthorize != "" {
		c.Auth.AuthorizeURL = ov.NeynarAuthorize
	}
	if ov.NeynarRedirect != "" {
		c.Auth.RedirectURI = ov.NeynarRedirect
	}
	if ov.DBPath != "" {
		c.Storage.DBPath = ov.DBPath
	}
	if ov.CacheTTL > 0 {
		c.Cache.TTL = ov.CacheTTL
	}
	if c.Auth.RedirectURI == "" {
		c.Auth.RedirectURI = c.Server.AppURL + "/auth/neynar/callback"
	}
	return nil
}

// Load reads YAML config from path, falling back to defaults where unset.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if rerr := cfg.ResolveEnv(); rerr != nil {
				return cfg, rerr
			}
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.ResolveEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
