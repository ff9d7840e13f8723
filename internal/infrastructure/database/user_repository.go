package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
	"github.com/sanosuguru/go-dbcontext/pkg/sqlutil"
)

type userRow struct {
	ID        int64     `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *userRow) toEntity() *user.User {
	return &user.User{
		ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Email: r.Email,
		CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const userColumns = `id, first_name, last_name, email, created_at, updated_at`

// UserRepository は実行コンテキストのアンビエントクライアントでクエリを発行する
type UserRepository struct{ tm *dbcontext.Manager }

func NewUserRepository(tm *dbcontext.Manager) *UserRepository { return &UserRepository{tm: tm} }

func (r *UserRepository) Create(ctx context.Context, dc *dbcontext.Context, u *user.User) error {
	return r.tm.WithClient(ctx, dc, func(ctx context.Context, exec dbcontext.Executor) error {
		query := exec.Rebind(`INSERT INTO users (first_name, last_name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
		err := exec.QueryRowxContext(ctx, query, u.FirstName, u.LastName, u.Email, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return user.ErrEmailAlreadyExists
			}
			return fmt.Errorf("ユーザー作成に失敗: %w", err)
		}
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, dc *dbcontext.Context, id int64) (*user.User, error) {
	return dbcontext.WithClientResult(ctx, r.tm, dc, func(ctx context.Context, exec dbcontext.Executor) (*user.User, error) {
		var row userRow
		query := exec.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
		if err := exec.GetContext(ctx, &row, query, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, user.ErrUserNotFound
			}
			return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
		}
		return row.toEntity(), nil
	})
}

type userPage struct {
	users []*user.User
	total int
}

func (r *UserRepository) List(ctx context.Context, dc *dbcontext.Context, filter user.ListFilter) ([]*user.User, int, error) {
	page, err := dbcontext.WithClientResult(ctx, r.tm, dc, func(ctx context.Context, exec dbcontext.Executor) (userPage, error) {
		query := `SELECT ` + userColumns + ` FROM users`
		var args []interface{}
		if filter.LastName != "" {
			clause, arg := sqlutil.LikeClause("last_name", filter.LastName, true)
			query += ` WHERE ` + clause
			args = append(args, arg)
		}
		query += ` ORDER BY id`

		rows, err := sqlutil.Paginate[userRow](ctx, exec, query, filter.Offset, filter.Limit, args...)
		if err != nil {
			return userPage{}, fmt.Errorf("ユーザー一覧取得に失敗: %w", err)
		}
		users := make([]*user.User, len(rows.Items))
		for i := range rows.Items {
			users[i] = rows.Items[i].toEntity()
		}
		return userPage{users: users, total: rows.Paging.TotalCount}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page.users, page.total, nil
}

func (r *UserRepository) UpdateFirstName(ctx context.Context, dc *dbcontext.Context, id int64, firstName string, updatedAt time.Time) error {
	return r.update(ctx, dc, `UPDATE users SET first_name = ?, updated_at = ? WHERE id = ?`, firstName, updatedAt, id)
}

func (r *UserRepository) UpdateLastName(ctx context.Context, dc *dbcontext.Context, id int64, lastName string, updatedAt time.Time) error {
	return r.update(ctx, dc, `UPDATE users SET last_name = ?, updated_at = ? WHERE id = ?`, lastName, updatedAt, id)
}

func (r *UserRepository) Delete(ctx context.Context, dc *dbcontext.Context, id int64) error {
	return r.update(ctx, dc, `DELETE FROM users WHERE id = ?`, id)
}

// update は1行だけ変更されることを期待する文を実行する
func (r *UserRepository) update(ctx context.Context, dc *dbcontext.Context, query string, args ...interface{}) error {
	return r.tm.WithClient(ctx, dc, func(ctx context.Context, exec dbcontext.Executor) error {
		result, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("ユーザー更新に失敗: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("ユーザー更新に失敗: %w", err)
		}
		if n == 0 {
			return user.ErrUserNotFound
		}
		return nil
	})
}

var _ user.Repository = (*UserRepository)(nil)
