package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Bridge.Platform != PlatformAndroid {
		t.Errorf("default Bridge.Platform = %q, want %q", cfg.Bridge.Platform, PlatformAndroid)
	}
	if cfg.Cache.Backend != CacheFile {
		t.Errorf("default Cache.Backend = %q, want %q", cfg.Cache.Backend, CacheFile)
	}
	if cfg.Persist.Mode != PersistFile {
		t.Errorf("default Persist.Mode = %q, want %q", cfg.Persist.Mode, PersistFile)
	}
	if cfg.Cache.Limit != DefaultCacheLimit {
		t.Errorf("default Cache.Limit = %d, want %d", cfg.Cache.Limit, DefaultCacheLimit)
	}
	if cfg.Storage.FindTimeout.Duration != 30*time.Second {
		t.Errorf("default Storage.FindTimeout = %v, want 30s", cfg.Storage.FindTimeout)
	}
	if cfg.Storage.FindAllTimeout.Duration != 0 {
		t.Errorf("default Storage.FindAllTimeout = %v, want 0 (unbounded)", cfg.Storage.FindAllTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error: %v", err)
	}
}

func TestSaveAndLoadConfig_roundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mmbridge", "config.toml")

	original := DefaultConfig()
	original.Bridge.Platform = PlatformIOS
	original.Bridge.Listen = "127.0.0.1:9999"
	original.Bridge.AuthToken = "secret-token-123"
	original.Cache.Backend = CacheSQLite
	original.Cache.Path = filepath.Join(dir, "events.db")
	original.Cache.Limit = 25
	original.Storage.FindTimeout = Duration{5 * time.Second}
	original.Storage.FindAllTimeout = Duration{time.Minute}
	original.Calls.Enabled = true
	original.Calls.ICEServers = []string{"stun:stun.example.com:3478"}
	original.Persist.Mode = PersistSecure

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if loaded.Bridge.Platform != PlatformIOS {
		t.Errorf("Bridge.Platform = %q, want %q", loaded.Bridge.Platform, PlatformIOS)
	}
	if loaded.Bridge.Listen != original.Bridge.Listen {
		t.Errorf("Bridge.Listen = %q, want %q", loaded.Bridge.Listen, original.Bridge.Listen)
	}
	if loaded.Bridge.AuthToken != original.Bridge.AuthToken {
		t.Errorf("Bridge.AuthToken = %q, want %q", loaded.Bridge.AuthToken, original.Bridge.AuthToken)
	}
	if loaded.Cache != original.Cache {
		t.Errorf("Cache = %+v, want %+v", loaded.Cache, original.Cache)
	}
	if loaded.Storage.FindTimeout.Duration != 5*time.Second {
		t.Errorf("Storage.FindTimeout = %v, want 5s", loaded.Storage.FindTimeout)
	}
	if loaded.Storage.FindAllTimeout.Duration != time.Minute {
		t.Errorf("Storage.FindAllTimeout = %v, want 1m", loaded.Storage.FindAllTimeout)
	}
	if !loaded.Calls.Enabled {
		t.Error("Calls.Enabled = false, want true")
	}
	if len(loaded.Calls.ICEServers) != 1 || loaded.Calls.ICEServers[0] != "stun:stun.example.com:3478" {
		t.Errorf("Calls.ICEServers = %v", loaded.Calls.ICEServers)
	}
	if loaded.Persist.Mode != PersistSecure {
		t.Errorf("Persist.Mode = %q, want %q", loaded.Persist.Mode, PersistSecure)
	}
}

func TestLoadConfig_fileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got: %v", err)
	}
}

func TestLoadConfig_appliesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[bridge]
platform = "ios"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing minimal config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.Bridge.Listen != DefaultListen {
		t.Errorf("Bridge.Listen = %q, want %q", cfg.Bridge.Listen, DefaultListen)
	}
	if cfg.Cache.Limit != DefaultCacheLimit {
		t.Errorf("Cache.Limit = %d, want %d", cfg.Cache.Limit, DefaultCacheLimit)
	}
	if cfg.Storage.FindTimeout.Duration != DefaultFindTimeout {
		t.Errorf("Storage.FindTimeout = %v, want %v", cfg.Storage.FindTimeout, DefaultFindTimeout)
	}
	if len(cfg.Calls.ICEServers) != len(DefaultICEServers) {
		t.Errorf("Calls.ICEServers count = %d, want %d", len(cfg.Calls.ICEServers), len(DefaultICEServers))
	}
}

func TestLoadConfig_invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad platform", "[bridge]\nplatform = \"windows\"\n", "bridge.platform"},
		{"bad backend", "[cache]\nbackend = \"redis\"\n", "cache.backend"},
		{"negative limit", "[cache]\nlimit = -1\n", "cache.limit"},
		{"bad persist", "[persist]\nmode = \"cloud\"\n", "persist.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			_, err := LoadConfig(path)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("LoadConfig() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestLoadConfig_badDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[storage]\nfind_timeout = \"soon\"\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error for unparsable duration")
	}
}

func TestParseTOML(t *testing.T) {
	t.Parallel()

	cfg, err := ParseTOML("[bridge]\nplatform = \"ios\"\n[cache]\nbackend = \"file\"\n")
	if err != nil {
		t.Fatalf("ParseTOML() error: %v", err)
	}
	if cfg.Bridge.Platform != PlatformIOS {
		t.Errorf("Bridge.Platform = %q, want ios", cfg.Bridge.Platform)
	}
	if cfg.Cache.Backend != CacheFile {
		t.Errorf("Cache.Backend = %q, want file", cfg.Cache.Backend)
	}

	if _, err := ParseTOML("not = [toml"); err == nil {
		t.Error("ParseTOML() expected error for malformed input")
	}
}

func TestParseTOML_platformDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		toml        string
		wantBackend string
		wantPersist string
	}{
		{
			name:        "empty config is android",
			toml:        "",
			wantBackend: CacheFile,
			wantPersist: PersistFile,
		},
		{
			name:        "android persists events across restarts",
			toml:        "[bridge]\nplatform = \"android\"\n",
			wantBackend: CacheFile,
			wantPersist: PersistFile,
		},
		{
			name:        "ios keeps events in memory and configuration in secure storage",
			toml:        "[bridge]\nplatform = \"ios\"\n",
			wantBackend: CacheMemory,
			wantPersist: PersistSecure,
		},
		{
			name:        "explicit values win",
			toml:        "[bridge]\nplatform = \"ios\"\n[cache]\nbackend = \"sqlite\"\n[persist]\nmode = \"none\"\n",
			wantBackend: CacheSQLite,
			wantPersist: PersistNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ParseTOML(tt.toml)
			if err != nil {
				t.Fatalf("ParseTOML() error: %v", err)
			}
			if cfg.Cache.Backend != tt.wantBackend {
				t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, tt.wantBackend)
			}
			if cfg.Persist.Mode != tt.wantPersist {
				t.Errorf("Persist.Mode = %q, want %q", cfg.Persist.Mode, tt.wantPersist)
			}
		})
	}
}

func TestLoadConfig_iosDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[bridge]\nplatform = \"ios\"\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Cache.Backend != CacheMemory || cfg.Persist.Mode != PersistSecure {
		t.Errorf("LoadConfig() cache = %q, persist = %q, want memory and secure", cfg.Cache.Backend, cfg.Persist.Mode)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv.
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath() error: %v", err)
	}
	want := filepath.Join("/tmp/test-xdg", "mmbridge", "config.toml")
	if path != want {
		t.Errorf("DefaultConfigPath() = %q, want %q", path, want)
	}
}

func TestDefaultConfigPath_fallback(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv.
	t.Setenv("XDG_CONFIG_HOME", "")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath() error: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error: %v", err)
	}
	want := filepath.Join(home, ".config", "mmbridge", "config.toml")
	if path != want {
		t.Errorf("DefaultConfigPath() = %q, want %q", path, want)
	}
}

func TestDefaultDataDir(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv.
	t.Setenv("XDG_DATA_HOME", "/tmp/test-data")
	dir, err := DefaultDataDir()
	if err != nil {
		t.Fatalf("DefaultDataDir() error: %v", err)
	}
	if want := filepath.Join("/tmp/test-data", "mmbridge"); dir != want {
		t.Errorf("DefaultDataDir() = %q, want %q", dir, want)
	}
}

func TestSaveConfig_createsParentDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "c", "config.toml")
	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}
