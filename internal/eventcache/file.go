package eventcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Next    int64   `json:"next"`
	Entries []Entry `json:"entries"`
}

// FileStore keeps entries in a JSON file so they survive a process
// restart. Every operation takes an advisory lock on a sibling ".lock"
// file, so a second process sharing the path (a background push handler,
// say) sees a consistent cache.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore at path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required for file-based event cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Append(_ context.Context, e Entry) (Entry, error) {
	err := f.update(func(st *fileState) {
		if st.Next == 0 {
			st.Next = 1
		}
		e.Seq = st.Next
		st.Next++
		st.Entries = append(st.Entries, e)
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (f *FileStore) List(context.Context) ([]Entry, error) {
	var out []Entry
	err := f.withLock(func() error {
		st, err := f.read()
		if err != nil {
			return err
		}
		out = st.Entries
		return nil
	})
	return out, err
}

func (f *FileStore) Delete(_ context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	return f.update(func(st *fileState) {
		st.Entries = without(st.Entries, seqs)
	})
}

func (f *FileStore) Trim(_ context.Context, limit int) (int, error) {
	var evicted int
	err := f.update(func(st *fileState) {
		st.Entries, evicted = trimmed(st.Entries, limit)
	})
	return evicted, err
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) update(fn func(*fileState)) error {
	return f.withLock(func() error {
		st, err := f.read()
		if err != nil {
			return err
		}
		fn(&st)
		return f.write(st)
	})
}

func (f *FileStore) withLock(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lf, err := os.OpenFile(f.path+".lock", os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("opening cache lock: %w", err)
	}
	defer lf.Close()

	if err := lockFile(lf); err != nil {
		return fmt.Errorf("locking cache: %w", err)
	}
	defer unlockFile(lf) //nolint:errcheck

	return fn()
}

func (f *FileStore) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading event cache: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decoding event cache %s: %w", f.path, err)
	}
	return st, nil
}

// write replaces the cache file atomically.
func (f *FileStore) write(st fileState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding event cache: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing event cache: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing event cache: %w", err)
	}
	return nil
}
