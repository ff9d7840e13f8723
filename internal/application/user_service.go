package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
	"github.com/sanosuguru/go-dbcontext/internal/domain/user"
	redisinfra "github.com/sanosuguru/go-dbcontext/internal/infrastructure/redis"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/logger"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/metrics"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
	"github.com/sanosuguru/go-dbcontext/pkg/sqlutil"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// UserCache はユーザーキャッシュのインターフェース
// 見つからない場合は redisinfra.ErrCacheMiss を返す
type UserCache interface {
	Get(ctx context.Context, id int64) (*user.User, error)
	Set(ctx context.Context, u *user.User) error
	Invalidate(ctx context.Context, id int64) error
}

type UserService struct {
	tm        *dbcontext.Manager
	userRepo  user.Repository
	auditRepo audit.Repository
	cache     UserCache
	metrics   *metrics.Metrics
}

// NewUserService は UserService を作成する。cache と m は nil でもよい
func NewUserService(tm *dbcontext.Manager, ur user.Repository, ar audit.Repository, cache UserCache, m *metrics.Metrics) *UserService {
	return &UserService{tm: tm, userRepo: ur, auditRepo: ar, cache: cache, metrics: m}
}

type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
}

// CreateUser はユーザーを作成し、同じトランザクションで監査ログを記録する
func (s *UserService) CreateUser(ctx context.Context, dc *dbcontext.Context, input CreateUserInput) (*user.User, error) {
	dc = ensureContext(dc)
	u := user.NewUser(input.FirstName, input.LastName, input.Email)
	if err := u.Validate(); err != nil {
		return nil, err
	}

	err := s.tm.WithTransaction(ctx, dc, func(ctx context.Context, _ dbcontext.Executor) error {
		if err := s.userRepo.Create(ctx, dc, u); err != nil {
			return err
		}
		return s.auditRepo.Record(ctx, dc, audit.NewEntry(u.ID, audit.KindCreated, u.FullName()))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser はキャッシュを優先してユーザーを取得する
func (s *UserService) GetUser(ctx context.Context, dc *dbcontext.Context, id int64) (*user.User, error) {
	if s.cache != nil {
		u, err := s.cache.Get(ctx, id)
		if err == nil {
			s.observeCache("hit")
			logger.Debug("キャッシュヒット", zap.Int64("user_id", id))
			return u, nil
		}
		if errors.Is(err, redisinfra.ErrCacheMiss) {
			s.observeCache("miss")
		} else {
			s.observeCache("error")
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	u, err := s.userRepo.GetByID(ctx, dc, id)
	if err != nil {
		return nil, err
	}

	// 読み取り後に無効化されていれば、キャッシュ側で保存を見送る
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, u); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return u, nil
}

type ListUsersInput struct {
	// LastName は先頭・末尾の * をワイルドカードとして扱う
	LastName string
	Offset   int
	Limit    int
}

type UserList struct {
	Users  []*user.User
	Paging sqlutil.Paging
}

// ListUsers はユーザー一覧をページングして取得する
func (s *UserService) ListUsers(ctx context.Context, dc *dbcontext.Context, input ListUsersInput) (*UserList, error) {
	offset, limit := input.Offset, input.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	users, total, err := s.userRepo.List(ctx, dc, user.ListFilter{LastName: input.LastName, Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	return &UserList{
		Users:  users,
		Paging: sqlutil.Paging{Offset: offset, Limit: limit, TotalCount: total},
	}, nil
}

type RenameUserInput struct {
	FirstName string
	LastName  string
}

// RenameUser は姓・名を個別に更新する。どちらかが失敗すれば両方ロールバックされる
func (s *UserService) RenameUser(ctx context.Context, dc *dbcontext.Context, id int64, input RenameUserInput) (*user.User, error) {
	dc = ensureContext(dc)
	u, err := dbcontext.WithTransactionResult(ctx, s.tm, dc, func(ctx context.Context, _ dbcontext.Executor) (*user.User, error) {
		u, err := s.userRepo.GetByID(ctx, dc, id)
		if err != nil {
			return nil, err
		}
		before := u.FullName()
		prevFirst, prevLast := u.FirstName, u.LastName
		if err := u.Rename(input.FirstName, input.LastName); err != nil {
			return nil, err
		}

		if u.LastName != prevLast {
			if err := s.userRepo.UpdateLastName(ctx, dc, id, u.LastName, u.UpdatedAt); err != nil {
				return nil, fmt.Errorf("姓の更新に失敗: %w", err)
			}
		}
		if u.FirstName != prevFirst {
			if err := s.userRepo.UpdateFirstName(ctx, dc, id, u.FirstName, u.UpdatedAt); err != nil {
				return nil, fmt.Errorf("名の更新に失敗: %w", err)
			}
		}

		detail := fmt.Sprintf("%s -> %s", before, u.FullName())
		if err := s.auditRepo.Record(ctx, dc, audit.NewEntry(id, audit.KindRenamed, detail)); err != nil {
			return nil, err
		}
		dc.AfterCommit(ctx, func(ctx context.Context) { s.invalidateCache(ctx, id) })
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser はユーザーを削除し、監査ログを記録する
func (s *UserService) DeleteUser(ctx context.Context, dc *dbcontext.Context, id int64) error {
	dc = ensureContext(dc)
	return s.tm.WithTransaction(ctx, dc, func(ctx context.Context, _ dbcontext.Executor) error {
		u, err := s.userRepo.GetByID(ctx, dc, id)
		if err != nil {
			return err
		}
		if err := s.userRepo.Delete(ctx, dc, id); err != nil {
			return err
		}
		if err := s.auditRepo.Record(ctx, dc, audit.NewEntry(id, audit.KindDeleted, u.FullName())); err != nil {
			return err
		}
		dc.AfterCommit(ctx, func(ctx context.Context) { s.invalidateCache(ctx, id) })
		return nil
	})
}

// GetUserAudits はユーザーの監査ログを古い順に返す
func (s *UserService) GetUserAudits(ctx context.Context, dc *dbcontext.Context, id int64) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	err := s.tm.WithClient(ctx, dc, func(ctx context.Context, _ dbcontext.Executor) error {
		// 削除済みユーザーの履歴も参照できるようにユーザーの存在は確認しない
		var err error
		entries, err = s.auditRepo.ListByUserID(ctx, dc, id)
		return err
	})
	return entries, err
}

// PurgeAudits は before より前の監査ログを削除し、削除件数を返す
func (s *UserService) PurgeAudits(ctx context.Context, dc *dbcontext.Context, before time.Time) (int, error) {
	dc = ensureContext(dc)
	n, err := dbcontext.WithTransactionResult(ctx, s.tm, dc, func(ctx context.Context, _ dbcontext.Executor) (int, error) {
		return s.auditRepo.DeleteBefore(ctx, dc, before)
	})
	if err != nil {
		return 0, fmt.Errorf("監査ログの削除に失敗: %w", err)
	}
	if s.metrics != nil && n > 0 {
		s.metrics.AuditEntriesPurged.Add(float64(n))
	}
	return n, nil
}

// ensureContext はリポジトリ呼び出しがトランザクションを共有できるよう実行コンテキストを用意する
func ensureContext(dc *dbcontext.Context) *dbcontext.Context {
	if dc == nil {
		return dbcontext.NewContext()
	}
	return dc
}

func (s *UserService) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Int64("user_id", id), zap.Error(err))
	}
}

func (s *UserService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.UserCacheLookups.WithLabelValues(result).Inc()
	}
}
