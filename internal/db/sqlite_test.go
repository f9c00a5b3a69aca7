package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("/tmp/reports.sqlite")

	assert.True(t, strings.HasPrefix(dsn, "/tmp/reports.sqlite?"))
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestOpenReportStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.sqlite")
	db, err := OpenReportStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	for _, table := range []string{"scan_runs", "scan_reports"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenReportStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.sqlite")
	first, err := OpenReportStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenReportStore(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenPostgres_RequiresURL(t *testing.T) {
	_, err := OpenPostgres(t.Context(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}
