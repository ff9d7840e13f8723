package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sanosuguru/go-dbcontext/internal/config"
)

func init() {
	// modernc の "sqlite" は sqlx の既定テーブルに無いため ? プレースホルダとして登録
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// CheckDriver は対応しているドライバーかどうかを確認する
func CheckDriver(driver string) error {
	switch driver {
	case config.DriverPostgres, config.DriverSQLite:
		return nil
	}
	return fmt.Errorf("未対応のデータベースドライバーです: %q", driver)
}

// NewConnection は設定されたドライバーでデータベースへの接続を作成する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	if err := CheckDriver(cfg.Driver); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	return db, nil
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

// LazyConnector は最初に要求されたときに接続を確立するクライアントファクトリ
type LazyConnector struct {
	cfg *config.DatabaseConfig

	mu sync.Mutex
	db *sqlx.DB
}

func NewLazyConnector(cfg *config.DatabaseConfig) *LazyConnector {
	return &LazyConnector{cfg: cfg}
}

// Client は dbcontext.ClientFactory として使える
// 接続に失敗した場合は次回の呼び出しで再試行する
func (c *LazyConnector) Client(ctx context.Context) (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return c.db, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := NewConnection(c.cfg)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

// Close は確立済みの接続を閉じる
func (c *LazyConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
