package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	data map[string]any
	err  error
}

func newMemBackend(kv map[string]any) *memBackend {
	if kv == nil {
		kv = map[string]any{}
	}
	return &memBackend{data: kv}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, _ := v.(int)
	return i, true, nil
}

func (m *memBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{err: errors.New("no keychain")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.BaseURL != "http://localhost:8000" {
		t.Errorf("Service.BaseURL = %q, want %q", cfg.Service.BaseURL, "http://localhost:8000")
	}
	if cfg.Service.Timeout != 30*time.Second {
		t.Errorf("Service.Timeout = %v, want 30s", cfg.Service.Timeout)
	}
	if cfg.Service.Token != "" {
		t.Errorf("Service.Token = %q, want empty", cfg.Service.Token)
	}
	if cfg.Poll.Interval != 3*time.Second {
		t.Errorf("Poll.Interval = %v, want 3s", cfg.Poll.Interval)
	}
	if cfg.Verify.SettleDelay != 2*time.Second {
		t.Errorf("Verify.SettleDelay = %v, want 2s", cfg.Verify.SettleDelay)
	}
	if cfg.Verify.RetryDelay != 1500*time.Millisecond {
		t.Errorf("Verify.RetryDelay = %v, want 1.5s", cfg.Verify.RetryDelay)
	}
	if cfg.Verify.MaxAttempts != 5 {
		t.Errorf("Verify.MaxAttempts = %d, want 5", cfg.Verify.MaxAttempts)
	}
	if cfg.Loader.RetryDelay != 2*time.Second {
		t.Errorf("Loader.RetryDelay = %v, want 2s", cfg.Loader.RetryDelay)
	}
	if cfg.Loader.MaxAttempts != 10 {
		t.Errorf("Loader.MaxAttempts = %d, want 10", cfg.Loader.MaxAttempts)
	}
	if cfg.DevServer.Port != 8000 {
		t.Errorf("DevServer.Port = %d, want 8000", cfg.DevServer.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if !strings.Contains(cfg.Storage.DataDir, "waypoint") {
		t.Errorf("Storage.DataDir = %q, want a waypoint directory", cfg.Storage.DataDir)
	}
}

// TestBackendValues verifies that every key type is read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]any{
		"service.base_url":    "https://api.example.com",
		"service.timeout":     "10s",
		"poll.interval":       "500ms",
		"verify.max_attempts": 3,
		"storage.data_dir":    "/tmp/waypoint-test",
		"devserver.port":      9000,
	})

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.BaseURL != "https://api.example.com" {
		t.Errorf("Service.BaseURL = %q", cfg.Service.BaseURL)
	}
	if cfg.Service.Timeout != 10*time.Second {
		t.Errorf("Service.Timeout = %v, want 10s", cfg.Service.Timeout)
	}
	if cfg.Poll.Interval != 500*time.Millisecond {
		t.Errorf("Poll.Interval = %v, want 500ms", cfg.Poll.Interval)
	}
	if cfg.Verify.MaxAttempts != 3 {
		t.Errorf("Verify.MaxAttempts = %d, want 3", cfg.Verify.MaxAttempts)
	}
	if cfg.Storage.DataDir != "/tmp/waypoint-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.DevServer.Port != 9000 {
		t.Errorf("DevServer.Port = %d, want 9000", cfg.DevServer.Port)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAYPOINT_SERVICE_BASE_URL", "http://env:8000")
	t.Setenv("WAYPOINT_LOADER_RETRY_DELAY", "250ms")
	t.Setenv("WAYPOINT_SERVICE_TOKEN", "env-token")

	b := newMemBackend(map[string]any{"service.base_url": "http://file:8000"})
	cfg, err := loadWith(b, mockKeychain{value: "keychain-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.BaseURL != "http://env:8000" {
		t.Errorf("Service.BaseURL = %q, want %q", cfg.Service.BaseURL, "http://env:8000")
	}
	if cfg.Loader.RetryDelay != 250*time.Millisecond {
		t.Errorf("Loader.RetryDelay = %v, want 250ms", cfg.Loader.RetryDelay)
	}
	if cfg.Service.Token != "env-token" {
		t.Errorf("Service.Token = %q, want %q", cfg.Service.Token, "env-token")
	}
}

// TestInvalidDurationKeepsDefault verifies bad durations fall back to defaults.
func TestInvalidDurationKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAYPOINT_POLL_INTERVAL", "soon")

	b := newMemBackend(map[string]any{"verify.settle_delay": "-2s"})
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Poll.Interval != 3*time.Second {
		t.Errorf("Poll.Interval = %v, want 3s", cfg.Poll.Interval)
	}
	if cfg.Verify.SettleDelay != 2*time.Second {
		t.Errorf("Verify.SettleDelay = %v, want 2s", cfg.Verify.SettleDelay)
	}
}

// TestKeychainFallback verifies the secret store is consulted when no token is set.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.Token != "keychain-secret" {
		t.Errorf("Service.Token = %q, want %q", cfg.Service.Token, "keychain-secret")
	}
}

// TestBackendError verifies backend read failures are returned.
func TestBackendError(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(nil)
	b.err = errors.New("defaults unavailable")
	if _, err := loadWith(b, mockKeychain{}); err == nil {
		t.Fatal("expected error from failing backend, got nil")
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKeyWith(b, "verify.max_attempts", "7"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if b.data["verify.max_attempts"] != 7 {
		t.Errorf("verify.max_attempts = %v, want 7", b.data["verify.max_attempts"])
	}
	if err := setKeyWith(b, "poll.interval", "5s"); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if b.data["poll.interval"] != "5s" {
		t.Errorf("poll.interval = %v, want 5s", b.data["poll.interval"])
	}

	if err := setKeyWith(b, "poll.interval", "often"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKeyWith(b, "verify.max_attempts", "many"); err == nil {
		t.Error("expected error for invalid integer")
	}
	if err := setKeyWith(b, "service.token", "x"); err == nil || !strings.Contains(err.Error(), "WAYPOINT_SERVICE_TOKEN") {
		t.Errorf("secret write error = %v, want env var hint", err)
	}
	if err := setKeyWith(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Service.Token = "hidden"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "service.token" || ki.Value == "hidden" {
			t.Errorf("ShowAll leaked secret: %+v", ki)
		}
	}
	if got, want := len(ShowAll(cfg)), len(ValidKeys()); got != want {
		t.Errorf("len(ShowAll) = %d, want %d", got, want)
	}
}
