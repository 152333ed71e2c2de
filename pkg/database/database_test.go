package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "engine.db"), MaxOpenConns: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDSN_UsesImmediateTransactions(t *testing.T) {
	dsn := DSN("data/engine.db", 0)
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_foreign_keys=on")
}

func TestMigrator_EmbeddedSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	require.NoError(t, migrator.RunMigrations(""))
	require.NoError(t, migrator.RunMigrations(""))

	for _, table := range []string{
		"workflow_definitions", "workflow_steps", "workflow_instances", "workflow_actions",
		"audit_logs", "admission_applications", "admission_payments", "leave_requests",
	} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 4, applied)
}

func TestMigrator_ActionsAreAppendOnly(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewMigrator(db, zap.NewNop()).RunMigrations(""))

	_, err := db.Exec(`INSERT INTO workflow_definitions (name, module, entity_type, version) VALUES ('d', 'm', 'e', 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO workflow_steps (workflow_id, step_order, name, approval_type, approver_roles) VALUES (1, 1, 's', 'SEQUENTIAL', '["A"]')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO workflow_instances (workflow_id, entity_type, entity_id, current_step, status, initiated_by) VALUES (1, 'e', '1', 1, 'IN_PROGRESS', 'u')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO workflow_actions (instance_id, step_id, actor_id, actor_role, action) VALUES (1, 1, 'u', 'A', 'APPROVE')`)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE workflow_actions SET action = 'REJECT'`)
	assert.ErrorContains(t, err, "append-only")

	_, err = db.Exec(`DELETE FROM workflow_actions`)
	assert.ErrorContains(t, err, "append-only")

	_, err = db.Exec(`DELETE FROM workflow_instances`)
	assert.ErrorContains(t, err, "audit records")
}

func TestMigrator_RunsInVersionOrder(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"002_add_column.sql": {Data: []byte(`ALTER TABLE widgets ADD COLUMN colour TEXT;`)},
		"001_create.sql":     {Data: []byte(`CREATE TABLE widgets (id INTEGER PRIMARY KEY);`)},
		"README.md":          {Data: []byte(`ignored`)},
	}

	require.NoError(t, NewMigrator(db, zap.NewNop()).Run(fsys))

	_, err := db.Exec(`INSERT INTO widgets (id, colour) VALUES (1, 'red')`)
	assert.NoError(t, err)
}

func TestMigrator_RejectsBadFilename(t *testing.T) {
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"initial.sql": {Data: []byte(`SELECT 1;`)},
	}

	err := NewMigrator(db, zap.NewNop()).Run(fsys)
	assert.ErrorContains(t, err, "invalid migration filename")
}
