package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactURI(t *testing.T) {
	assert.Equal(t, "mongodb://svc:xxxxx@db:27017/reporting", redactURI("mongodb://svc:s3cret@db:27017/reporting"))
	assert.Equal(t, "mongodb://localhost:27017", redactURI("mongodb://localhost:27017"))
	assert.Equal(t, "<unparseable uri>", redactURI("mongodb://%zz"))
}

func TestNewSQLiteDBCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reporting.db")
	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewSQLiteDBRequiresPath(t *testing.T) {
	_, err := NewSQLiteDB("")
	assert.Error(t, err)
}
