package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Supported platforms. The platform selects the native event identifier
// table and the default event cache backend.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// Event cache backends.
const (
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheSQLite = "sqlite"
)

// Configuration persistence modes.
const (
	PersistNone   = "none"
	PersistFile   = "file"
	PersistSecure = "secure"
)

// Defaults applied when the corresponding field is left unset.
const (
	DefaultListen           = "127.0.0.1:8787"
	DefaultPath             = "/connect"
	DefaultCacheLimit       = 100
	DefaultFindTimeout      = 30 * time.Second
	DefaultPreflightTimeout = 10 * time.Second
	DefaultKeyringService   = "mmbridge"
)

// DefaultICEServers are used by the calls preflight when none are configured.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
}

// Config is the top-level configuration for the bridge process.
// It is persisted as a TOML file at DefaultConfigPath().
type Config struct {
	Bridge  BridgeConfig  `toml:"bridge"`
	Cache   CacheConfig   `toml:"cache"`
	Storage StorageConfig `toml:"storage"`
	Calls   CallsConfig   `toml:"calls"`
	Persist PersistConfig `toml:"persist"`
}

// BridgeConfig controls how the JS runtime reaches the bridge.
type BridgeConfig struct {
	// Platform is "android" or "ios".
	Platform string `toml:"platform"`

	// Listen is the host-link WebSocket listen address.
	Listen string `toml:"listen"`

	// Path is the HTTP path the host link is served on.
	Path string `toml:"path"`

	// AuthToken, when set, must be presented by the JS runtime as a
	// bearer token.
	AuthToken string `toml:"auth_token,omitempty"`

	// ControlSocket overrides the unix socket used by `mmbridge status`.
	ControlSocket string `toml:"control_socket,omitempty"`
}

// CacheConfig selects where events wait while no JS listener can take them.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path,omitempty"`
	Limit   int    `toml:"limit"`
}

// StorageConfig bounds the custom message storage rendezvous.
type StorageConfig struct {
	FindTimeout Duration `toml:"find_timeout"`

	// FindAllTimeout of zero waits until the JS store answers or the
	// caller gives up.
	FindAllTimeout Duration `toml:"find_all_timeout,omitempty"`
}

// CallsConfig describes the optional WebRTC calls capability.
type CallsConfig struct {
	// Enabled reports whether the native calls module is linked into the app.
	Enabled          bool     `toml:"enabled"`
	ICEServers       []string `toml:"ice_servers,omitempty"`
	PreflightTimeout Duration `toml:"preflight_timeout"`
}

// PersistConfig controls where the app Configuration survives restarts.
type PersistConfig struct {
	Mode           string `toml:"mode"`
	Path           string `toml:"path,omitempty"`
	KeyringService string `toml:"keyring_service,omitempty"`
}

// PlatformDefaults returns the cache backend and persistence mode a
// platform uses when the config leaves them unset. Android keeps cached
// events and the Configuration in files that survive a process restart;
// iOS keeps events in memory and the Configuration in secure storage.
func PlatformDefaults(platform string) (cacheBackend, persistMode string) {
	if platform == PlatformIOS {
		return CacheMemory, PersistSecure
	}
	return CacheFile, PersistFile
}

// DefaultConfig returns a Config populated with sensible defaults for
// Android.
func DefaultConfig() *Config {
	cfg := decodeBase()
	applyDefaults(cfg)
	return cfg
}

// decodeBase is DefaultConfig without the platform-dependent fields, so
// that decoding a file can pick them once the platform is known.
func decodeBase() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Platform: PlatformAndroid,
			Listen:   DefaultListen,
			Path:     DefaultPath,
		},
		Cache: CacheConfig{
			Limit: DefaultCacheLimit,
		},
		Storage: StorageConfig{
			FindTimeout: Duration{DefaultFindTimeout},
		},
		Calls: CallsConfig{
			ICEServers:       append([]string(nil), DefaultICEServers...),
			PreflightTimeout: Duration{DefaultPreflightTimeout},
		},
		Persist: PersistConfig{
			KeyringService: DefaultKeyringService,
		},
	}
}

// DefaultConfigPath returns the default path for the mmbridge config file.
// It respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mmbridge", "config.toml"), nil
}

// DefaultDataDir returns the directory holding the event cache and the
// persisted app Configuration. It respects $XDG_DATA_HOME.
func DefaultDataDir() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "mmbridge"), nil
}

// LoadConfig reads and decodes a TOML config file from the given path.
// If the file does not exist, it returns an error wrapping fs.ErrNotExist.
// After loading, defaults are applied for any unset optional fields.
func LoadConfig(path string) (*Config, error) {
	cfg := decodeBase()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig encodes the config as TOML and writes it to the given path.
// Parent directories are created if they don't exist. The file is written
// with mode 0600 since it may contain the host-link auth token.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating config file %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

// ParseTOML decodes a config from TOML text, as handed over by mobile hosts.
func ParseTOML(text string) (*Config, error) {
	cfg := decodeBase()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.Bridge.Platform {
	case PlatformAndroid, PlatformIOS:
	default:
		return &ValidationError{Field: "bridge.platform", Reason: fmt.Sprintf("unsupported platform %q", c.Bridge.Platform)}
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheFile, CacheSQLite:
	default:
		return &ValidationError{Field: "cache.backend", Reason: fmt.Sprintf("unsupported backend %q", c.Cache.Backend)}
	}
	if c.Cache.Limit <= 0 {
		return &ValidationError{Field: "cache.limit", Reason: "must be positive"}
	}
	switch c.Persist.Mode {
	case PersistNone, PersistFile, PersistSecure:
	default:
		return &ValidationError{Field: "persist.mode", Reason: fmt.Sprintf("unsupported mode %q", c.Persist.Mode)}
	}
	return nil
}

// applyDefaults fills in default values for optional fields that are
// zero-valued after TOML decoding.
func applyDefaults(cfg *Config) {
	if cfg.Bridge.Platform == "" {
		cfg.Bridge.Platform = PlatformAndroid
	}
	if cfg.Bridge.Listen == "" {
		cfg.Bridge.Listen = DefaultListen
	}
	if cfg.Bridge.Path == "" {
		cfg.Bridge.Path = DefaultPath
	}
	backend, persist := PlatformDefaults(cfg.Bridge.Platform)
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = backend
	}
	if cfg.Cache.Limit == 0 {
		cfg.Cache.Limit = DefaultCacheLimit
	}
	if cfg.Storage.FindTimeout.Duration == 0 {
		cfg.Storage.FindTimeout = Duration{DefaultFindTimeout}
	}
	if len(cfg.Calls.ICEServers) == 0 {
		cfg.Calls.ICEServers = append([]string(nil), DefaultICEServers...)
	}
	if cfg.Calls.PreflightTimeout.Duration == 0 {
		cfg.Calls.PreflightTimeout = Duration{DefaultPreflightTimeout}
	}
	if cfg.Persist.Mode == "" {
		cfg.Persist.Mode = persist
	}
	if cfg.Persist.KeyringService == "" {
		cfg.Persist.KeyringService = DefaultKeyringService
	}
}
