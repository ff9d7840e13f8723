package application

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/config"
	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	"github.com/sanosuguru/go-dbcontext/internal/infrastructure/database"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// === Mock implementations ===

// MockUserRepository implements user.Repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, dc *dbcontext.Context, u *user.User) error {
	args := m.Called(ctx, dc, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, dc *dbcontext.Context, id int64) (*user.User, error) {
	args := m.Called(ctx, dc, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, dc *dbcontext.Context, filter user.ListFilter) ([]*user.User, int, error) {
	args := m.Called(ctx, dc, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*user.User), args.Int(1), args.Error(2)
}

func (m *MockUserRepository) UpdateFirstName(ctx context.Context, dc *dbcontext.Context, id int64, firstName string, updatedAt time.Time) error {
	args := m.Called(ctx, dc, id, firstName, updatedAt)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateLastName(ctx context.Context, dc *dbcontext.Context, id int64, lastName string, updatedAt time.Time) error {
	args := m.Called(ctx, dc, id, lastName, updatedAt)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, dc *dbcontext.Context, id int64) error {
	args := m.Called(ctx, dc, id)
	return args.Error(0)
}

// MockAuditRepository implements audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Record(ctx context.Context, dc *dbcontext.Context, e *audit.Entry) error {
	args := m.Called(ctx, dc, e)
	return args.Error(0)
}

func (m *MockAuditRepository) ListByUserID(ctx context.Context, dc *dbcontext.Context, userID int64) ([]*audit.Entry, error) {
	args := m.Called(ctx, dc, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Entry), args.Error(1)
}

func (m *MockAuditRepository) DeleteBefore(ctx context.Context, dc *dbcontext.Context, before time.Time) (int, error) {
	args := m.Called(ctx, dc, before)
	return args.Int(0), args.Error(1)
}

// MockUserCache implements UserCache
type MockUserCache struct {
	mock.Mock
}

func (m *MockUserCache) Get(ctx context.Context, id int64) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserCache) Set(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserCache) Invalidate(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// setupTestDB はマイグレーション済みの SQLite とトランザクションマネージャーを返す
func setupTestDB(t *testing.T) *dbcontext.Manager {
	t.Helper()
	db, err := database.NewConnection(&config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "testing.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db.DB, config.DriverSQLite))
	return database.NewTxManager(db, zap.NewNop(), nil)
}
