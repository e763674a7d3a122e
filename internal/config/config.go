package config

import (
	"fmt"
	"time"

	"github.com/kalambet/rankd/internal/rank"
)

type Config struct {
	Server  ServerConfig
	Sync    SyncConfig
	Rating  RatingConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type SyncConfig struct {
	BaseURL        string
	Token          string
	ServerInterval time.Duration
	LocalDebounce  time.Duration
}

type RatingConfig struct {
	Enabled       bool
	DecayConstant float64
	MaxResults    int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Sync: SyncConfig{
			ServerInterval: 24 * time.Hour,
			LocalDebounce:  5 * time.Second,
		},
		Rating: RatingConfig{
			Enabled:       true,
			DecayConstant: rank.DefaultDecayConstant,
			MaxResults:    20,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.rankd.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/rankd/config.json
// and secrets fall back to a file at $XDG_DATA_HOME/rankd/secrets.json.
//
// Environment variables (RANKD_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), platformKeychain{})
}

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the sync token if still empty.
	if cfg.Sync.Token == "" {
		if token, err := kc.Get(keychainService, "sync_token"); err == nil && token != "" {
			cfg.Sync.Token = token
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Sync.BaseURL == "" {
		return fmt.Errorf("missing required config: sync service base URL. "+
			"Set it via `rankd config set sync.base_url <url>` or environment variable %s", envSyncBaseURL)
	}
	if cfg.Rating.DecayConstant <= 0 {
		return fmt.Errorf("rating.decay_constant must be positive, got %v", cfg.Rating.DecayConstant)
	}
	if cfg.Sync.ServerInterval <= 0 {
		return fmt.Errorf("sync.server_interval must be positive, got %v", cfg.Sync.ServerInterval)
	}
	if cfg.Sync.LocalDebounce <= 0 {
		return fmt.Errorf("sync.local_debounce must be positive, got %v", cfg.Sync.LocalDebounce)
	}
	if cfg.Rating.MaxResults <= 0 || cfg.Rating.MaxResults > rank.MaxTopPeersLimit {
		return fmt.Errorf("rating.max_results must be in 1..%d, got %d", rank.MaxTopPeersLimit, cfg.Rating.MaxResults)
	}
	return nil
}
