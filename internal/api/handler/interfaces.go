package handler

import (
	"context"

	"github.com/sanosuguru/go-dbcontext/internal/application"
	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// UserServiceInterface はユーザーサービスのインターフェース
// dc はリクエストごとの実行コンテキスト
type UserServiceInterface interface {
	CreateUser(ctx context.Context, dc *dbcontext.Context, input application.CreateUserInput) (*user.User, error)
	GetUser(ctx context.Context, dc *dbcontext.Context, id int64) (*user.User, error)
	ListUsers(ctx context.Context, dc *dbcontext.Context, input application.ListUsersInput) (*application.UserList, error)
	RenameUser(ctx context.Context, dc *dbcontext.Context, id int64, input application.RenameUserInput) (*user.User, error)
	DeleteUser(ctx context.Context, dc *dbcontext.Context, id int64) error
	GetUserAudits(ctx context.Context, dc *dbcontext.Context, id int64) ([]*audit.Entry, error)
}

var _ UserServiceInterface = (*application.UserService)(nil)
