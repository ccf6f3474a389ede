// Package snapshot serializes the entire entity store across a
// restart/upgrade boundary and rehydrates it afterwards. Snapshots are
// versioned and checksummed; a partial or corrupt snapshot is rejected
// wholesale rather than partially applied.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coachvault/coachd/internal/store"
)

// SchemaVersion guards the serialized entity layout. Bump when the
// conversation/message encoding changes and add a migration in Load.
const SchemaVersion = 1

// ErrCorrupt means the snapshot file exists but cannot be trusted. It is
// fatal: the caller must not serve repository operations on top of it.
var ErrCorrupt = errors.New("snapshot: corrupt")

type entry struct {
	Key   string `json:"k"`
	Value []byte `json:"v"` // base64 via encoding/json
}

type image struct {
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Entries  []entry   `json:"entries"`
	Checksum string    `json:"checksum"` // sha256 over all entries
}

// Manager owns the snapshot file location.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: expandHome(path)}
}

// Path returns the resolved snapshot file path.
func (m *Manager) Path() string { return m.path }

// Save serializes every entry of the store into the snapshot file. The
// write is temp-file + rename so a crash mid-write leaves the previous
// snapshot intact.
func (m *Manager) Save(ctx context.Context, s store.EntityStore) error {
	img := image{Version: SchemaVersion, SavedAt: time.Now().UTC()}
	err := s.ScanPrefix(ctx, "", func(key string, value []byte) error {
		img.Entries = append(img.Entries, entry{Key: key, Value: value})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan store: %w", err)
	}
	img.Checksum = checksum(img.Entries)

	data, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load rehydrates the store from the snapshot file. A missing file is a
// fresh start, not an error. Version mismatches, truncated JSON and
// checksum failures all surface ErrCorrupt; nothing is applied in that
// case.
func (m *Manager) Load(ctx context.Context, s store.EntityStore) (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	var img image
	if err := json.Unmarshal(data, &img); err != nil {
		return 0, fmt.Errorf("%w: parse: %v", ErrCorrupt, err)
	}
	if img.Version != SchemaVersion {
		return 0, fmt.Errorf("%w: schema version %d, want %d", ErrCorrupt, img.Version, SchemaVersion)
	}
	if got := checksum(img.Entries); got != img.Checksum {
		return 0, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	for _, e := range img.Entries {
		if err := s.Put(ctx, e.Key, e.Value); err != nil {
			return 0, fmt.Errorf("rehydrate %s: %w", e.Key, err)
		}
	}
	return len(img.Entries), nil
}

func checksum(entries []entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.Key))
		h.Write([]byte{0})
		h.Write(e.Value)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
