package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachvault/coachd/internal/store"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "snapshot.json"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	src := store.NewMemoryStore(0)
	entries := map[string]string{
		"conv:alice:c1":            `{"id":"c1"}`,
		"msg:c1:00000000000000000001": "hello",
		"msg:c1:00000000000000000002": "world",
		"convown:c1":               "alice",
	}
	for k, v := range entries {
		require.NoError(t, src.Put(ctx, k, []byte(v)))
	}

	require.NoError(t, m.Save(ctx, src))

	dst := store.NewMemoryStore(0)
	n, err := m.Load(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, len(entries), n)

	for k, want := range entries {
		v, ok, err := dst.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "key %s missing after rehydration", k)
		assert.Equal(t, want, string(v))
	}
	assert.Equal(t, src.Len(), dst.Len(), "no extra keys after rehydration")
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	dst := store.NewMemoryStore(0)
	n, err := m.Load(ctx, dst)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, dst.Len())
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	src := store.NewMemoryStore(0)
	require.NoError(t, src.Put(ctx, "conv:a:c1", []byte("payload")))
	require.NoError(t, m.Save(ctx, src))

	// Flip a value byte without updating the checksum.
	raw, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	var img map[string]any
	require.NoError(t, json.Unmarshal(raw, &img))
	img["entries"] = []map[string]any{{"k": "conv:a:c1", "v": []byte("tampered")}}
	raw, err = json.Marshal(img)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.Path(), raw, 0o644))

	dst := store.NewMemoryStore(0)
	_, err = m.Load(ctx, dst)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Zero(t, dst.Len(), "nothing may be applied from a corrupt snapshot")
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	src := store.NewMemoryStore(0)
	require.NoError(t, src.Put(ctx, "conv:a:c1", []byte("payload")))
	require.NoError(t, m.Save(ctx, src))

	raw, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.Path(), raw[:len(raw)/2], 0o644))

	dst := store.NewMemoryStore(0)
	_, err = m.Load(ctx, dst)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Zero(t, dst.Len())
}

func TestLoadRejectsSchemaVersionMismatch(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	img := image{Version: SchemaVersion + 1}
	img.Checksum = checksum(img.Entries)
	raw, err := json.Marshal(img)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), raw, 0o644))

	_, err = m.Load(ctx, store.NewMemoryStore(0))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	ctx := context.Background()
	m := testManager(t)

	src := store.NewMemoryStore(0)
	require.NoError(t, src.Put(ctx, "k1", []byte("v1")))
	require.NoError(t, m.Save(ctx, src))

	require.NoError(t, src.Put(ctx, "k2", []byte("v2")))
	require.NoError(t, m.Save(ctx, src))

	_, err := os.Stat(m.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not linger")

	dst := store.NewMemoryStore(0)
	n, err := m.Load(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
