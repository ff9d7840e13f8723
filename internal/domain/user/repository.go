package user

import (
	"context"
	"time"

	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// ListFilter はユーザー一覧の検索条件
// LastName は先頭・末尾の * をワイルドカードとして扱う
type ListFilter struct {
	LastName string
	Offset   int
	Limit    int
}

// Repository はユーザーリポジトリのインターフェース
// すべての操作は実行コンテキストのアンビエントクライアントを使う
type Repository interface {
	// Create は新しいユーザーを作成し ID を設定する
	Create(ctx context.Context, dc *dbcontext.Context, user *User) error

	// GetByID はIDからユーザーを取得する
	GetByID(ctx context.Context, dc *dbcontext.Context, id int64) (*User, error)

	// List はユーザー一覧と総件数を取得する
	List(ctx context.Context, dc *dbcontext.Context, filter ListFilter) ([]*User, int, error)

	// UpdateFirstName は名を更新する
	UpdateFirstName(ctx context.Context, dc *dbcontext.Context, id int64, firstName string, updatedAt time.Time) error

	// UpdateLastName は姓を更新する
	UpdateLastName(ctx context.Context, dc *dbcontext.Context, id int64, lastName string, updatedAt time.Time) error

	// Delete はユーザーを削除する
	Delete(ctx context.Context, dc *dbcontext.Context, id int64) error
}
