package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := open(t)

	code := []byte{0x60, 0x01, 0x00}
	id, err := s.Put("counter", code)
	require.NoError(t, err)
	require.Equal(t, ID(code), id)

	a, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, "counter", a.Name)
	require.Equal(t, code, a.Code)
	require.False(t, a.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	s := open(t)
	_, err := s.Get("deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutIdenticalCodeSharesRow(t *testing.T) {
	s := open(t)

	code := []byte{0x60, 0x2a}
	id1, err := s.Put("first", code)
	require.NoError(t, err)
	id2, err := s.Put("second", code)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "second", all[0].Name)
}

func TestDelete(t *testing.T) {
	s := open(t)

	id, err := s.Put("gone", []byte{0x00})
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))

	_, err = s.Get(id)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(id))
}

func TestListOmitsCode(t *testing.T) {
	s := open(t)

	_, err := s.Put("a", []byte{0x01})
	require.NoError(t, err)
	_, err = s.Put("b", []byte{0x02})
	require.NoError(t, err)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, a := range all {
		require.Empty(t, a.Code)
		require.NotEmpty(t, a.ID)
	}
}
