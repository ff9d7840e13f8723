package dbcontext

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Executor はユニットオブワークに渡されるクエリ実行インターフェース
// *sqlx.DB と *sqlx.Tx の共通部分で、Commit / Rollback は含まない
type Executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

var (
	_ Executor = (*sqlx.DB)(nil)
	_ Executor = (*sqlx.Tx)(nil)
)

// Kind はクライアントの種別
type Kind int

const (
	KindNone Kind = iota
	KindPlain
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPlain:
		return "plain"
	case KindTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Client はアンビエントクライアントを表すタグ付きバリアント
// ゼロ値はクライアントなしを表す
type Client struct {
	kind Kind
	db   *sqlx.DB
	tx   *sqlx.Tx
}

// PlainClient はトランザクション外のクライアントを作成する
func PlainClient(db *sqlx.DB) Client {
	return Client{kind: KindPlain, db: db}
}

// TransactionClient はトランザクションクライアントを作成する
func TransactionClient(tx *sqlx.Tx) Client {
	return Client{kind: KindTransaction, tx: tx}
}

func (c Client) Kind() Kind { return c.kind }

func (c Client) IsZero() bool { return c.kind == KindNone }

func (c Client) IsTransaction() bool { return c.kind == KindTransaction }

// Executor は内部のハンドルを返す。ハンドルがない場合は nil
func (c Client) Executor() Executor {
	switch c.kind {
	case KindPlain:
		if c.db != nil {
			return c.db
		}
	case KindTransaction:
		if c.tx != nil {
			return c.tx
		}
	}
	return nil
}

// DriverName はハンドルのドライバー名を返す
func (c Client) DriverName() string {
	if e := c.Executor(); e != nil {
		return e.DriverName()
	}
	return ""
}

func (c Client) String() string {
	switch c.kind {
	case KindPlain:
		return fmt.Sprintf("plain(driver=%q, handle=%p)", c.DriverName(), c.db)
	case KindTransaction:
		return fmt.Sprintf("transaction(driver=%q, handle=%p)", c.DriverName(), c.tx)
	default:
		return c.kind.String()
	}
}
