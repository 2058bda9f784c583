package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps balances in a JSON snapshot. Writes go to a temp file that is
// synced and then renamed over the snapshot, so a reader sees either the old or the
// new file and never a partial one.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]int64{}, nil
		}
		return nil, unavailable("open snapshot", err)
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, unavailable("decode snapshot", err)
	}

	balances := make(map[string]int64, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		balances[acc.ID] = acc.Balance
	}
	if err := validateBalances(balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *FileStore) Save(_ context.Context, balances map[string]int64) error {
	if err := validateBalances(balances); err != nil {
		return err
	}

	snap := Snapshot{
		Meta: Meta{Storage: "json_snapshot", Version: snapshotVersion, Timestamp: time.Now().UTC()},
	}
	for id, balance := range balances {
		snap.Accounts = append(snap.Accounts, PersistAccount{ID: id, Balance: balance})
	}
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].ID < snap.Accounts[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return unavailable("create data dir", err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return unavailable("create temp snapshot", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return unavailable("encode snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return unavailable("sync snapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return unavailable("close temp snapshot", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return unavailable("replace snapshot", err)
	}
	return nil
}

// Close is a no-op; the file is only held open during Load and Save.
func (s *FileStore) Close() error { return nil }
