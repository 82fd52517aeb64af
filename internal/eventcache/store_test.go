package eventcache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kuuji/mmbridge/internal/config"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	dir := t.TempDir()
	fileStore, err := NewFileStore(filepath.Join(dir, "events.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	sqliteStore, err := OpenSQLite(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStores(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			var seqs []int64
			for _, ev := range []string{"a", "b", "c", "d"} {
				e, err := s.Append(ctx, Entry{Name: ev, Data: json.RawMessage(`"` + ev + `"`), RecordedAt: at})
				if err != nil {
					t.Fatalf("Append(%s) error: %v", ev, err)
				}
				seqs = append(seqs, e.Seq)
			}
			for i := 1; i < len(seqs); i++ {
				if seqs[i] <= seqs[i-1] {
					t.Fatalf("sequence numbers not increasing: %v", seqs)
				}
			}

			if err := s.Delete(ctx, []int64{seqs[1]}); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			evicted, err := s.Trim(ctx, 2)
			if err != nil {
				t.Fatalf("Trim() error: %v", err)
			}
			if evicted != 1 {
				t.Errorf("Trim() evicted %d, want 1", evicted)
			}

			got, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(got) != 2 || got[0].Name != "c" || got[1].Name != "d" {
				t.Fatalf("List() = %+v, want [c d]", got)
			}
			if string(got[0].Data) != `"c"` {
				t.Errorf("Data = %s, want \"c\"", got[0].Data)
			}
			if !got[0].RecordedAt.Equal(at) {
				t.Errorf("RecordedAt = %v, want %v", got[0].RecordedAt, at)
			}
		})
	}
}

func TestFileStore_survivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "events.json")
	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	if _, err := first.Append(context.Background(), Entry{Name: "tokenReceived", Data: json.RawMessage(`"t"`)}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	e, err := second.Append(context.Background(), Entry{Name: "tokenReceived"})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if e.Seq != 2 {
		t.Errorf("Seq after reopen = %d, want 2", e.Seq)
	}
	got, _ := second.List(context.Background())
	if len(got) != 2 {
		t.Errorf("List() after reopen = %d entries, want 2", len(got))
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		backend string
		wantErr bool
	}{
		{config.CacheMemory, false},
		{config.CacheFile, false},
		{config.CacheSQLite, false},
		{"redis", true},
	}
	for _, tt := range tests {
		s, err := Open(config.CacheConfig{Backend: tt.backend}, dir)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			continue
		}
		if s != nil {
			s.Close()
		}
	}

	s, err := Open(config.CacheConfig{Backend: config.CacheFile, Path: "cache/ev.json"}, dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got, want := s.(*FileStore).Path(), filepath.Join(dir, "cache", "ev.json"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}
