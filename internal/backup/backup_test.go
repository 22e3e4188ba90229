package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Run(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "users.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite payload"), 0o644))

	backupDir := filepath.Join(dir, "backups")
	store := New(dbPath, backupDir)

	path, err := store.Run()
	require.NoError(t, err)
	require.NotEmpty(t, path)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "users.db."))
	assert.True(t, strings.HasSuffix(path, ".bak"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite payload", string(data))
}

func TestStore_Run_NoBackingFile(t *testing.T) {
	// postgres-backed stores have no file to copy
	store := New("", t.TempDir())

	path, err := store.Run()
	require.NoError(t, err)
	assert.Equal(t, "", path)
}

func TestStore_Run_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "absent.db"), filepath.Join(dir, "backups"))

	path, err := store.Run()
	require.NoError(t, err)
	assert.Equal(t, "", path)
}
