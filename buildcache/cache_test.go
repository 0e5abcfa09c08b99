package buildcache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Signature(key string) (string, bool, error)
	Store(key, sig string) error
	Forget(key string) error
	Len() (int, error)
}

func exercise(t *testing.T, s store) {
	_, ok, err := s.Signature("a.meat")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Store("a.meat", "1111"))
	require.NoError(t, s.Store("b.meat", "2222"))
	require.NoError(t, s.Store("a.meat", "3333"))

	sig, ok, err := s.Signature("a.meat")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3333", sig)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Forget("a.meat"))
	require.NoError(t, s.Forget("missing.meat"))
	_, ok, err = s.Signature("a.meat")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestDB(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "cache", "signatures.db"))
	require.NoError(t, err)
	defer db.Close()
	exercise(t, db)
}

func TestDBPersists(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "signatures.db")

	db, err := Open(fn)
	require.NoError(t, err)
	require.NoError(t, db.Store("rt.meat", "abcd"))
	require.NoError(t, db.Close())

	db, err = Open(fn)
	require.NoError(t, err)
	defer db.Close()
	sig, ok, err := db.Signature("rt.meat")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abcd", sig)
}

func TestDBConcurrentStores(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "signatures.db"))
	require.NoError(t, err)
	defer db.Close()

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.Store(fmt.Sprintf("out%d.meat", i), "sig"))
		}(i)
	}
	wg.Wait()

	n, err := db.Len()
	require.NoError(t, err)
	assert.Equal(t, 16, n)
}
