// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/Gofven/flowback-backend-sub001/internal/migration"
	"github.com/Gofven/flowback-backend-sub001/internal/migrations"
	"github.com/Gofven/flowback-backend-sub001/pkg/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB opens an empty in-memory SQLite database with foreign keys on.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Executor returns a migration executor over the real migration set.
func Executor(t testing.TB, db *gorm.DB) *migration.Executor {
	t.Helper()
	g, err := migrations.Graph()
	require.NoError(t, err)
	ex, err := migration.NewExecutor(db, g, zerolog.Nop())
	require.NoError(t, err)
	return ex
}

// NewDB opens an in-memory database with every migration applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db := OpenDB(t)
	require.NoError(t, Executor(t, db).Migrate(context.Background(), migration.Target{}))
	return db
}

// SchemaObject is one row of sqlite_master.
type SchemaObject struct {
	Type    string
	Name    string
	TblName string
	SQL     string
}

// Schema lists every table, index and constraint index outside the
// migration bookkeeping.
func Schema(t testing.TB, db *gorm.DB) []SchemaObject {
	t.Helper()
	var objs []SchemaObject
	err := db.Raw(`SELECT type, name, tbl_name, COALESCE(sql, '') AS sql FROM sqlite_master
		WHERE tbl_name NOT IN ('schema_migrations', 'sqlite_sequence')
		ORDER BY type, name`).Scan(&objs).Error
	require.NoError(t, err)
	return objs
}
