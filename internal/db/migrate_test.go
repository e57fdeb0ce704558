package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsRecordsApplied(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "m.db"), "")
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE name = '0001_init.sql'").Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, RunMigrations(conn, ""))
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n, "second run applies nothing")
}

func TestRunMigrationsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_extra.sql"), []byte("CREATE TABLE extra (id INTEGER PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_base.sql"), []byte("CREATE TABLE base (id INTEGER PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	files, err := loadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001_base.sql", files[0].name)

	conn, err := Open(filepath.Join(t.TempDir(), "d.db"), dir)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec("INSERT INTO extra (id) VALUES (1)")
	assert.NoError(t, err)
}

func TestRunMigrationsRollsBackFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_bad.sql"), []byte("CREATE TABLE ok (id INTEGER); NOT SQL;"), 0o644))
	_, err := Open(filepath.Join(t.TempDir(), "bad.db"), dir)
	assert.ErrorContains(t, err, "0001_bad.sql")
}

func TestMissingDirectoryFallsBackToEmbedded(t *testing.T) {
	files, err := loadMigrations(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_init.sql", files[0].name)
}
