package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists the ledger as one JSON file, written atomically via
// tmp + rename. Load/save failures are the caller's problem to escalate:
// durable ledger state is the one thing this process must not lose.
type Store struct {
	path string
}

type stateFile struct {
	Version   int64               `json:"version"`
	UpdatedAt string              `json:"updated_at"`
	Positions map[string]Position `json:"positions"`
	Realized  []Entry             `json:"realized_pnl"`
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the last snapshot, returning a fresh ledger if none exists.
func (s *Store) Load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read ledger state: %w", err)
	}
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal ledger state: %w", err)
	}
	l := New()
	if f.Positions != nil {
		l.Positions = f.Positions
	}
	l.Realized = f.Realized
	l.version = f.Version
	return l, nil
}

// Save writes the current snapshot and clears the ledger's dirty flag.
func (s *Store) Save(l *Ledger) error {
	l.version++
	data, err := json.MarshalIndent(stateFile{
		Version:   l.version,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Positions: l.Positions,
		Realized:  l.Realized,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write ledger state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename ledger state: %w", err)
	}
	l.MarkFlushed()
	return nil
}
