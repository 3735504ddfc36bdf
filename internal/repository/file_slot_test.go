package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSlot_MissingFile(t *testing.T) {
	s, err := NewFileSlot(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	_, err = s.Get(context.Background())
	require.ErrorIs(t, err, ErrSlotNotFound)
}

func TestFileSlot_PutThenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileSlot(path)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), []byte("first")))
	require.NoError(t, s.Put(context.Background(), []byte("second")))

	raw, err := s.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", string(raw))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestNewFileSlot_EmptyPath(t *testing.T) {
	_, err := NewFileSlot("  ")
	require.ErrorContains(t, err, "must not be empty")
}

func TestMemorySlot(t *testing.T) {
	s := NewMemorySlot()
	_, err := s.Get(context.Background())
	require.ErrorIs(t, err, ErrSlotNotFound)

	buf := []byte("value")
	require.NoError(t, s.Put(context.Background(), buf))
	buf[0] = 'X'

	raw, err := s.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "value", string(raw))
}
