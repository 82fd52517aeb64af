// Package eventcache holds native events that fire while no JS listener can
// receive them, and replays them once one attaches.
package eventcache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
)

// Entry is one cached event.
type Entry struct {
	Seq        int64           `json:"seq"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data,omitempty"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Store persists entries in arrival order.
type Store interface {
	// Append stores e and returns it with its sequence number assigned.
	Append(ctx context.Context, e Entry) (Entry, error)

	// List returns every entry, oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes the entries with the given sequence numbers.
	Delete(ctx context.Context, seqs []int64) error

	// Trim evicts the oldest entries until at most limit remain and reports
	// how many were evicted.
	Trim(ctx context.Context, limit int) (int, error)

	Close() error
}

// Open creates the Store selected by cfg.Backend. Relative or empty paths
// resolve inside dataDir.
func Open(cfg config.CacheConfig, dataDir string) (Store, error) {
	switch cfg.Backend {
	case config.CacheMemory, "":
		return NewMemoryStore(), nil
	case config.CacheFile:
		return NewFileStore(resolvePath(cfg.Path, dataDir, "events.json"))
	case config.CacheSQLite:
		return OpenSQLite(resolvePath(cfg.Path, dataDir, "events.db"))
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s (supported: memory, file, sqlite)", cfg.Backend)
	}
}

func resolvePath(path, dataDir, name string) string {
	if path == "" {
		return filepath.Join(dataDir, name)
	}
	if !filepath.IsAbs(path) && dataDir != "" {
		return filepath.Join(dataDir, path)
	}
	return path
}
