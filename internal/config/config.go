package config

import (
	"strings"
	"time"
)

type Config struct {
	Service   ServiceConfig
	Poll      PollConfig
	Verify    VerifyConfig
	Loader    LoaderConfig
	Storage   StorageConfig
	DevServer DevServerConfig
	Log       LogConfig
}

type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string
}

type PollConfig struct {
	Interval time.Duration
}

type VerifyConfig struct {
	SettleDelay time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
}

type LoaderConfig struct {
	RetryDelay  time.Duration
	MaxAttempts int
}

type StorageConfig struct {
	DataDir string
}

type DevServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Poll: PollConfig{
			Interval: 3 * time.Second,
		},
		Verify: VerifyConfig{
			SettleDelay: 2 * time.Second,
			RetryDelay:  1500 * time.Millisecond,
			MaxAttempts: 5,
		},
		Loader: LoaderConfig{
			RetryDelay:  2 * time.Second,
			MaxAttempts: 10,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		DevServer: DevServerConfig{
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.waypoint.app) and the
// service token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/waypoint/config.json
// and the token falls back to $XDG_DATA_HOME/waypoint/secrets.json.
//
// Environment variables (WAYPOINT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The token is optional; the public service accepts anonymous requests.
	if cfg.Service.Token == "" {
		if tok, err := kc.Get("waypoint", "service_token"); err == nil && tok != "" {
			cfg.Service.Token = tok
		}
	}

	return cfg, nil
}

// keychainReader reads the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
