// Package testutil opens migrated sqlite databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/garyjia/approval-engine/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewDB opens a file-backed database in t.TempDir with the embedded schema applied
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "engine.db"),
		MaxOpenConns: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(""))
	return db
}
