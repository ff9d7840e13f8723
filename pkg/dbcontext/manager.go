package dbcontext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ClientFactory はデータベースクライアントを遅延取得する関数
type ClientFactory func(ctx context.Context) (*sqlx.DB, error)

// StaticClient は既存の接続プールを返す ClientFactory を作成する
func StaticClient(db *sqlx.DB) ClientFactory {
	return func(context.Context) (*sqlx.DB, error) {
		return db, nil
	}
}

// UnitOfWork は渡されたクライアントでクエリを実行する処理
type UnitOfWork func(ctx context.Context, exec Executor) error

// Mode はユニットオブワークの実行モード
type Mode string

const (
	ModeClient      Mode = "client"
	ModeTransaction Mode = "transaction"
)

// Outcome はユニットオブワークの結果
type Outcome string

const (
	OutcomeReused        Outcome = "reused"
	OutcomeCompleted     Outcome = "completed"
	OutcomeFailed        Outcome = "failed"
	OutcomeCommitted     Outcome = "committed"
	OutcomeRolledBack    Outcome = "rolled_back"
	OutcomeAcquireFailed Outcome = "acquire_failed"
	OutcomeInvalidClient Outcome = "invalid_client"
)

// Observer はユニットオブワークの計測フック
type Observer interface {
	ObserveUnitOfWork(mode Mode, outcome Outcome, elapsed time.Duration)
}

// Manager はネストしたトランザクションを扱うマネージャー
// クライアントを直接使わず、常に WithClient / WithTransaction を経由することで
// 既に開始済みのトランザクションがあればクエリがその一部になる
type Manager struct {
	getClient ClientFactory
	txOptions *sql.TxOptions
	logger    *zap.Logger
	observer  Observer

	mu         sync.RWMutex
	driverName string
}

// Option は Manager の設定
type Option func(*Manager)

// WithDriverName は想定するドライバー名を指定する
// 指定しない場合はファクトリが最初に返したクライアントから決まる
func WithDriverName(name string) Option {
	return func(m *Manager) { m.driverName = name }
}

// WithTxOptions はトランザクション開始時のオプションを指定する
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(m *Manager) { m.txOptions = opts }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager は新しい Manager を作成する
func NewManager(getClient ClientFactory, opts ...Option) *Manager {
	m := &Manager{
		getClient: getClient,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithClient は明示的なトランザクションを必要としないクエリを実行する
// トランザクションが既に開始されていれば、クエリはそのトランザクションの一部になる
func (m *Manager) WithClient(ctx context.Context, dc *Context, fn UnitOfWork) error {
	return m.run(ctx, dc, ModeClient, fn)
}

// WithTransaction はトランザクション内でクエリを実行する
// 既にトランザクションが開始されていれば同じトランザクションを使う（セーブポイントは作らない）
func (m *Manager) WithTransaction(ctx context.Context, dc *Context, fn UnitOfWork) error {
	return m.run(ctx, dc, ModeTransaction, fn)
}

// WithClientResult は WithClient の戻り値付き版
func WithClientResult[T any](ctx context.Context, m *Manager, dc *Context, fn func(ctx context.Context, exec Executor) (T, error)) (T, error) {
	var result T
	err := m.WithClient(ctx, dc, func(ctx context.Context, exec Executor) error {
		var err error
		result, err = fn(ctx, exec)
		return err
	})
	return result, err
}

// WithTransactionResult は WithTransaction の戻り値付き版
func WithTransactionResult[T any](ctx context.Context, m *Manager, dc *Context, fn func(ctx context.Context, exec Executor) (T, error)) (T, error) {
	var result T
	err := m.WithTransaction(ctx, dc, func(ctx context.Context, exec Executor) error {
		var err error
		result, err = fn(ctx, exec)
		return err
	})
	return result, err
}

func (m *Manager) run(ctx context.Context, dc *Context, mode Mode, fn UnitOfWork) error {
	if dc == nil {
		dc = &Context{}
	}
	start := time.Now()
	log := m.logger.With(zap.String("context_id", dc.id), zap.String("mode", string(mode)))

	existing := dc.current
	if err := m.checkClient(existing); err != nil {
		m.observe(mode, OutcomeInvalidClient, start)
		return err
	}

	if !existing.IsZero() && (mode == ModeClient || existing.IsTransaction()) {
		log.Debug("アンビエントクライアントを再利用", zap.Stringer("client", existing))
		err := fn(ctx, existing.Executor())
		m.observe(mode, OutcomeReused, start)
		return err
	}

	db, err := m.acquire(ctx)
	if err != nil {
		m.observe(mode, OutcomeAcquireFailed, start)
		return err
	}

	if mode == ModeTransaction {
		outcome, err := m.runInTransaction(ctx, dc, db, existing, fn, log)
		m.observe(mode, outcome, start)
		return err
	}

	err = m.runWithPlainClient(ctx, dc, db, existing, fn)
	if err != nil {
		m.observe(mode, OutcomeFailed, start)
		return err
	}
	m.observe(mode, OutcomeCompleted, start)
	return nil
}

func (m *Manager) runWithPlainClient(ctx context.Context, dc *Context, db *sqlx.DB, prev Client, fn UnitOfWork) error {
	dc.current = PlainClient(db)
	defer func() { dc.current = prev }()
	return fn(ctx, db)
}

func (m *Manager) runInTransaction(ctx context.Context, dc *Context, db *sqlx.DB, prev Client, fn UnitOfWork, log *zap.Logger) (Outcome, error) {
	tx, err := db.BeginTxx(ctx, m.txOptions)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	log.Debug("トランザクション開始")

	hooks, outcome, err := m.execInTransaction(ctx, dc, tx, prev, fn, log)
	if err != nil {
		return outcome, err
	}
	log.Debug("トランザクションをコミット", zap.Int("after_commit_hooks", len(hooks)))

	// アンビエントクライアントを戻した後に実行する
	for _, h := range hooks {
		h(ctx)
	}
	return outcome, nil
}

func (m *Manager) execInTransaction(ctx context.Context, dc *Context, tx *sqlx.Tx, prev Client, fn UnitOfWork, log *zap.Logger) (hooks []func(context.Context), outcome Outcome, err error) {
	prevHooks := dc.hooks
	dc.hooks = &hookList{}
	dc.current = TransactionClient(tx)
	defer func() {
		dc.current = prev
		dc.hooks = prevHooks
	}()
	defer func() {
		if p := recover(); p != nil {
			m.rollback(tx, log)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		m.rollback(tx, log)
		return nil, OutcomeRolledBack, err
	}
	if err := tx.Commit(); err != nil {
		return nil, OutcomeFailed, fmt.Errorf("コミットに失敗: %w", err)
	}
	return dc.hooks.fns, OutcomeCommitted, nil
}

// rollback の失敗は元のエラーを置き換えない
func (m *Manager) rollback(tx *sqlx.Tx, log *zap.Logger) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn("ロールバックに失敗", zap.Error(err))
		return
	}
	log.Debug("トランザクションをロールバック")
}

func (m *Manager) acquire(ctx context.Context) (*sqlx.DB, error) {
	db, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, ErrNoClient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.driverName == "" {
		m.driverName = db.DriverName()
	} else if db.DriverName() != m.driverName {
		return nil, fmt.Errorf("%w: ファクトリが %q のクライアントを返しました（想定: %q）", ErrInvalidClientKind, db.DriverName(), m.driverName)
	}
	return db, nil
}

// checkClient はアンビエントクライアントが想定するクライアントかを確認する
func (m *Manager) checkClient(c Client) error {
	if c.IsZero() {
		return nil
	}
	if c.Executor() == nil {
		return fmt.Errorf("%w: ハンドルがありません: %s", ErrInvalidClientKind, c)
	}

	m.mu.RLock()
	expected := m.driverName
	m.mu.RUnlock()
	if expected != "" && c.DriverName() != expected {
		return fmt.Errorf("%w: %s（想定ドライバー: %q）", ErrInvalidClientKind, c, expected)
	}
	return nil
}

func (m *Manager) observe(mode Mode, outcome Outcome, start time.Time) {
	if m.observer != nil {
		m.observer.ObserveUnitOfWork(mode, outcome, time.Since(start))
	}
}
