package config

// ConfigBackend abstracts platform-specific config storage: UserDefaults on
// macOS, an XDG JSON file everywhere else. Durations are stored as strings.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
