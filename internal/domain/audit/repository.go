package audit

import (
	"context"
	"time"

	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// Repository は監査ログリポジトリのインターフェース
type Repository interface {
	// Record は監査ログを記録する
	Record(ctx context.Context, dc *dbcontext.Context, entry *Entry) error

	// ListByUserID はユーザーの監査ログを古い順に取得する
	ListByUserID(ctx context.Context, dc *dbcontext.Context, userID int64) ([]*Entry, error)

	// DeleteBefore は指定時刻より前の監査ログを削除し、削除件数を返す
	DeleteBefore(ctx context.Context, dc *dbcontext.Context, before time.Time) (int, error)
}
