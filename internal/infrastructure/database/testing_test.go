package database

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/config"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

func sqliteConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "testing.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

// setupTestDB はマイグレーション済みの SQLite データベースを返す
func setupTestDB(t *testing.T) (*sqlx.DB, *dbcontext.Manager) {
	t.Helper()
	db, err := NewConnection(sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db.DB, config.DriverSQLite))
	return db, NewTxManager(db, zap.NewNop(), nil)
}
