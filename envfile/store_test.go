package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ochinchina/stackpanel/faults"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/srv/stack/.env")
	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	raw, err := store.Raw()
	require.NoError(t, err)
	assert.Equal(t, "", raw)
}

func TestSaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/srv/stack/.env")
	entries := ParseString("# header\nAPP_DOMAIN=app.example.com\n")

	require.NoError(t, store.Save(entries))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	files, err := afero.ReadDir(fs, "/srv/stack")
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary file left behind")
}

func TestSavePreservesMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/stack/.env", []byte("A=1\n"), 0o600))
	store := NewStore(fs, "/srv/stack/.env")

	_, err := store.Upsert(Pair{"B", "2"})
	require.NoError(t, err)
	fi, err := fs.Stat("/srv/stack/.env")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestUpsertPreservesOtherLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "# comment\n\nAPP_DOMAIN=old.example.com\n  # indented\nDB_PASS=secret\n"
	require.NoError(t, afero.WriteFile(fs, "/srv/stack/.env", []byte(content), 0o640))
	store := NewStore(fs, "/srv/stack/.env")

	_, err := store.Upsert(Pair{"APP_DOMAIN", "new.example.com"})
	require.NoError(t, err)
	raw, err := store.Raw()
	require.NoError(t, err)
	assert.Equal(t, "# comment\n\nAPP_DOMAIN=new.example.com\n  # indented\nDB_PASS=secret\n", raw)
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/stack/.env", []byte("A=1\n"), 0o640))
	store := NewStore(fs, "/srv/stack/.env")

	_, err := store.Update(func(e Entries) (Entries, error) {
		return nil, faults.ValidationError("nope")
	})
	assert.Error(t, err)
	raw, _ := store.Raw()
	assert.Equal(t, "A=1\n", raw)
}

func TestSaveReadOnlyFsIsIOError(t *testing.T) {
	store := NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/srv/stack/.env")
	err := store.Save(ParseString("A=1\n"))
	assert.True(t, faults.Is(err, faults.IO))
}

func TestReplaceNormalizes(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/srv/stack/.env")
	entries, err := store.Replace("A=1\n# note\nA=2\n")
	require.NoError(t, err)
	assert.Equal(t, "A=2\n# note\n", entries.String())
	raw, _ := store.Raw()
	assert.Equal(t, "A=2\n# note\n", raw)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/srv/stack/.env")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Upsert(Pair{fmt.Sprintf("KEY_%02d", i), "v"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, entries.Keys(), 20)
}

func TestOsFsUsesLockFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	store := NewStore(afero.NewOsFs(), path)

	_, err := store.Upsert(Pair{"APP_DOMAIN", "app.example.com"})
	require.NoError(t, err)
	_, err = os.Stat(path + ".lock")
	assert.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "APP_DOMAIN=app.example.com\n", string(b))
}

func TestExclusiveBlocksOtherWriters(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/srv/stack/.env")
	done := make(chan struct{})

	err := store.Exclusive(func(tx Session) error {
		_, err := tx.Upsert(Pair{"APP_DOMAIN", "app.example.com"})
		require.NoError(t, err)

		go func() {
			defer close(done)
			_, err := store.Upsert(Pair{"BOT_DOMAIN", "bot.example.com"})
			assert.NoError(t, err)
		}()
		time.Sleep(50 * time.Millisecond)

		entries, err := tx.Load()
		require.NoError(t, err)
		_, found := entries.Get("BOT_DOMAIN")
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
	<-done

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", entries.Value("APP_DOMAIN"))
	assert.Equal(t, "bot.example.com", entries.Value("BOT_DOMAIN"))
}

func TestExclusiveKeepsWritesOnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/srv/stack/.env")

	err := store.Exclusive(func(tx Session) error {
		_, err := tx.Upsert(Pair{"A", "1"})
		require.NoError(t, err)
		return faults.ValidationError("stop")
	})
	assert.True(t, faults.Is(err, faults.Validation))
	raw, _ := store.Raw()
	assert.Equal(t, "A=1\n", raw)
}
