package config

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
)

// keyringUser is the account name the sealing key is stored under.
const keyringUser = "configuration-key"

// ErrNoConfiguration is returned by Load when nothing has been persisted.
var ErrNoConfiguration = errors.New("no persisted configuration")

// ConfigurationStore persists the accepted app Configuration so that a
// restarted bridge can re-initialize without the JS layer.
type ConfigurationStore interface {
	Save(cfg *Configuration) error
	Load() (*Configuration, error)
	Clear() error
}

// OpenStore builds the store selected by cfg.Persist. dataDir is used
// when no explicit path is configured.
func OpenStore(cfg PersistConfig, dataDir string) (ConfigurationStore, error) {
	path := cfg.Path
	switch cfg.Mode {
	case PersistNone:
		return nopStore{}, nil
	case PersistFile:
		if path == "" {
			path = filepath.Join(dataDir, "configuration.json")
		}
		return NewFileStore(path), nil
	case PersistSecure:
		if path == "" {
			path = filepath.Join(dataDir, "configuration.sealed")
		}
		return NewSecureStore(path, cfg.KeyringService, nil), nil
	default:
		return nil, fmt.Errorf("unsupported persist mode %q", cfg.Mode)
	}
}

type nopStore struct{}

func (nopStore) Save(*Configuration) error     { return nil }
func (nopStore) Load() (*Configuration, error) { return nil, ErrNoConfiguration }
func (nopStore) Clear() error                  { return nil }

// FileStore keeps the configuration as a JSON file readable only by the
// owner.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes cfg, honouring its privacy settings.
func (s *FileStore) Save(cfg *Configuration) error {
	data, err := json.Marshal(cfg.persistable())
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return writePrivate(s.path, data)
}

// Load reads the configuration back. It returns ErrNoConfiguration when the
// file does not exist.
func (s *FileStore) Load() (*Configuration, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoConfiguration
		}
		return nil, fmt.Errorf("reading configuration %s: %w", s.path, err)
	}
	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration %s: %w", s.path, err)
	}
	return &cfg, nil
}

// Clear removes the file. A missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing configuration %s: %w", s.path, err)
	}
	return nil
}

// Keyring is the subset of the OS keyring the secure store needs.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, secret string) error   { return keyring.Set(service, user, secret) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

// SecureStore seals the configuration with XChaCha20-Poly1305. The key
// lives in the OS keyring under service.
type SecureStore struct {
	path    string
	service string
	ring    Keyring
}

// NewSecureStore returns a SecureStore. A nil ring uses the OS keyring.
func NewSecureStore(path, service string, ring Keyring) *SecureStore {
	if ring == nil {
		ring = osKeyring{}
	}
	if service == "" {
		service = DefaultKeyringService
	}
	return &SecureStore{path: path, service: service, ring: ring}
}

// Save seals and writes cfg, creating the keyring entry on first use.
func (s *SecureStore) Save(cfg *Configuration) error {
	key, err := s.key(true)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	plain, err := json.Marshal(cfg.persistable())
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, []byte(s.service))
	return writePrivate(s.path, sealed)
}

// Load opens the sealed file. It returns ErrNoConfiguration when either the
// file or the key is missing.
func (s *SecureStore) Load() (*Configuration, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoConfiguration
		}
		return nil, fmt.Errorf("reading configuration %s: %w", s.path, err)
	}
	key, err := s.key(false)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed configuration %s is truncated", s.path)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(s.service))
	if err != nil {
		return nil, fmt.Errorf("opening sealed configuration: %w", err)
	}
	var cfg Configuration
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// Clear removes the sealed file and its key.
func (s *SecureStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing configuration %s: %w", s.path, err)
	}
	if err := s.ring.Delete(s.service, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry: %w", err)
	}
	return nil
}

func (s *SecureStore) key(create bool) (Key, error) {
	secret, err := s.ring.Get(s.service, keyringUser)
	if err == nil {
		return ParseKey(secret)
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return Key{}, fmt.Errorf("reading keyring entry: %w", err)
	}
	if !create {
		return Key{}, ErrNoConfiguration
	}

	k, err := GenerateKey()
	if err != nil {
		return Key{}, err
	}
	if err := s.ring.Set(s.service, keyringUser, k.String()); err != nil {
		return Key{}, fmt.Errorf("storing keyring entry: %w", err)
	}
	return k, nil
}

func writePrivate(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
