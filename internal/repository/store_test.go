package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vault-blog/internal/database"
	"github.com/iliyamo/vault-blog/internal/vault"
)

func newTestVault(t *testing.T) *vault.Store {
	t.Helper()
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "repo_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return vault.New(db)
}
