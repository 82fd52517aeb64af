package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/zalando/go-keyring"
)

// memKeyring is an in-memory Keyring.
type memKeyring struct {
	mu      sync.Mutex
	secrets map[string]string
}

func newMemKeyring() *memKeyring {
	return &memKeyring{secrets: make(map[string]string)}
}

func (k *memKeyring) Get(service, user string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.secrets[service+"/"+user]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return s, nil
}

func (k *memKeyring) Set(service, user, secret string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.secrets[service+"/"+user] = secret
	return nil
}

func (k *memKeyring) Delete(service, user string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.secrets[service+"/"+user]; !ok {
		return keyring.ErrNotFound
	}
	delete(k.secrets, service+"/"+user)
	return nil
}

func sampleConfiguration() *Configuration {
	return &Configuration{
		ApplicationCode:  "app-code-123",
		InAppChatEnabled: true,
		Android:          &AndroidSettings{NotificationIcon: "ic_notification"},
		NotificationCategories: []NotificationCategory{
			{Identifier: "category", Actions: []NotificationAction{{Identifier: "reply", Title: "Reply"}}},
		},
		WebRTCUI: &WebRTCUIConfig{ConfigurationID: "cfg-1"},
	}
}

func TestFileStore_roundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "configuration.json")
	store := NewFileStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNoConfiguration) {
		t.Fatalf("Load() before Save error = %v, want ErrNoConfiguration", err)
	}

	if err := store.Save(sampleConfiguration()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("configuration file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("configuration file permissions = %o, want 0600", perm)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.ApplicationCode != "app-code-123" {
		t.Errorf("ApplicationCode = %q, want app-code-123", loaded.ApplicationCode)
	}
	if loaded.WebRTCUI == nil || loaded.WebRTCUI.ConfigurationID != "cfg-1" {
		t.Errorf("WebRTCUI = %+v, want configurationId cfg-1", loaded.WebRTCUI)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
}

func TestFileStore_honoursPrivacy(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "configuration.json"))

	cfg := sampleConfiguration()
	cfg.PrivacySettings = &PrivacySettings{ApplicationCodePersistingDisabled: true}
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.ApplicationCode != "" {
		t.Errorf("ApplicationCode = %q, want empty", loaded.ApplicationCode)
	}
	if cfg.ApplicationCode != "app-code-123" {
		t.Error("Save() mutated the caller's configuration")
	}
}

func TestSecureStore_roundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.sealed")
	ring := newMemKeyring()
	store := NewSecureStore(path, "mmbridge-test", ring)

	if err := store.Save(sampleConfiguration()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading sealed file: %v", err)
	}
	if bytes.Contains(raw, []byte("app-code-123")) {
		t.Error("sealed file contains the plaintext application code")
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.ApplicationCode != "app-code-123" {
		t.Errorf("ApplicationCode = %q, want app-code-123", loaded.ApplicationCode)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, err := ring.Get("mmbridge-test", keyringUser); !errors.Is(err, keyring.ErrNotFound) {
		t.Errorf("keyring entry still present after Clear(): %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoConfiguration) {
		t.Errorf("Load() after Clear() error = %v, want ErrNoConfiguration", err)
	}
}

func TestSecureStore_tamperedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.sealed")
	store := NewSecureStore(path, "mmbridge-test", newMemKeyring())

	if err := store.Save(sampleConfiguration()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading sealed file: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatalf("writing tampered file: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Fatal("Load() expected error for tampered file")
	}
}

func TestSecureStore_missingKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "configuration.sealed")
	if err := newTestSecureStore(t, path).Save(sampleConfiguration()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// A fresh keyring has no key for the existing file.
	other := NewSecureStore(path, "mmbridge-test", newMemKeyring())
	if _, err := other.Load(); !errors.Is(err, ErrNoConfiguration) {
		t.Errorf("Load() error = %v, want ErrNoConfiguration", err)
	}
}

func newTestSecureStore(t *testing.T, path string) *SecureStore {
	t.Helper()
	return NewSecureStore(path, "mmbridge-test", newMemKeyring())
}

func TestSecureStore_osKeyringMock(t *testing.T) {
	// keyring.MockInit swaps a process-wide provider, so no t.Parallel().
	keyring.MockInit()

	path := filepath.Join(t.TempDir(), "configuration.sealed")
	s := NewSecureStore(path, "", nil)
	if err := s.Save(sampleConfiguration()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.ApplicationCode != "app-code-123" {
		t.Errorf("ApplicationCode = %q, want app-code-123", loaded.ApplicationCode)
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{PersistNone, "config.nopStore", false},
		{PersistFile, "*config.FileStore", false},
		{PersistSecure, "*config.SecureStore", false},
		{"cloud", "", true},
	}

	for _, tt := range tests {
		s, err := OpenStore(PersistConfig{Mode: tt.mode}, dir)
		if tt.wantErr {
			if err == nil {
				t.Errorf("OpenStore(%q) expected error", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Errorf("OpenStore(%q) error: %v", tt.mode, err)
			continue
		}
		if got := typeName(s); got != tt.want {
			t.Errorf("OpenStore(%q) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nopStore:
		return "config.nopStore"
	case *FileStore:
		return "*config.FileStore"
	case *SecureStore:
		return "*config.SecureStore"
	}
	return "unknown"
}

func TestConfigurationValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   *Configuration
		field string
	}{
		{"ok", sampleConfiguration(), ""},
		{"missing app code", &Configuration{}, "applicationCode"},
		{"category without id", &Configuration{
			ApplicationCode:        "x",
			NotificationCategories: []NotificationCategory{{}},
		}, "notificationCategories[0].identifier"},
		{"action without id", &Configuration{
			ApplicationCode:        "x",
			NotificationCategories: []NotificationCategory{{Identifier: "c", Actions: []NotificationAction{{}}}},
		}, "notificationCategories[0].actions[0].identifier"},
		{"webrtc without id", &Configuration{ApplicationCode: "x", WebRTCUI: &WebRTCUIConfig{}}, "webRTCUI.configurationId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestConfigurationClone_independent(t *testing.T) {
	t.Parallel()

	orig := sampleConfiguration()
	clone := orig.Clone()
	clone.NotificationCategories[0].Actions[0].Title = "changed"
	clone.Android.NotificationIcon = "other"
	clone.WebRTCUI.ConfigurationID = "other"

	if orig.NotificationCategories[0].Actions[0].Title != "Reply" {
		t.Error("Clone() shares notification actions")
	}
	if orig.Android.NotificationIcon != "ic_notification" {
		t.Error("Clone() shares android settings")
	}
	if orig.WebRTCUI.ConfigurationID != "cfg-1" {
		t.Error("Clone() shares webRTCUI settings")
	}
	if (*Configuration)(nil).Clone() != nil {
		t.Error("nil.Clone() != nil")
	}
}
