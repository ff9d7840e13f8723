package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

type auditRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Kind      string    `db:"kind"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *auditRow) toEntity() *audit.Entry {
	return &audit.Entry{
		ID: r.ID, UserID: r.UserID, Kind: audit.Kind(r.Kind), Detail: r.Detail,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type AuditRepository struct{ tm *dbcontext.Manager }

func NewAuditRepository(tm *dbcontext.Manager) *AuditRepository { return &AuditRepository{tm: tm} }

func (r *AuditRepository) Record(ctx context.Context, dc *dbcontext.Context, e *audit.Entry) error {
	return r.tm.WithClient(ctx, dc, func(ctx context.Context, exec dbcontext.Executor) error {
		query := exec.Rebind(`INSERT INTO user_audits (user_id, kind, detail, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
		if err := exec.QueryRowxContext(ctx, query, e.UserID, string(e.Kind), e.Detail, e.CreatedAt).Scan(&e.ID); err != nil {
			return fmt.Errorf("監査ログ記録に失敗: %w", err)
		}
		return nil
	})
}

func (r *AuditRepository) ListByUserID(ctx context.Context, dc *dbcontext.Context, userID int64) ([]*audit.Entry, error) {
	return dbcontext.WithClientResult(ctx, r.tm, dc, func(ctx context.Context, exec dbcontext.Executor) ([]*audit.Entry, error) {
		var rows []auditRow
		query := exec.Rebind(`SELECT id, user_id, kind, detail, created_at FROM user_audits WHERE user_id = ? ORDER BY id`)
		if err := exec.SelectContext(ctx, &rows, query, userID); err != nil {
			return nil, fmt.Errorf("監査ログ取得に失敗: %w", err)
		}
		entries := make([]*audit.Entry, len(rows))
		for i := range rows {
			entries[i] = rows[i].toEntity()
		}
		return entries, nil
	})
}

func (r *AuditRepository) DeleteBefore(ctx context.Context, dc *dbcontext.Context, before time.Time) (int, error) {
	return dbcontext.WithClientResult(ctx, r.tm, dc, func(ctx context.Context, exec dbcontext.Executor) (int, error) {
		result, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM user_audits WHERE created_at < ?`), before.UTC())
		if err != nil {
			return 0, fmt.Errorf("監査ログ削除に失敗: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("監査ログ削除に失敗: %w", err)
		}
		return int(n), nil
	})
}

var _ audit.Repository = (*AuditRepository)(nil)
