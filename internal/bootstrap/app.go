package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/api"
	"github.com/sanosuguru/go-dbcontext/internal/api/handler"
	"github.com/sanosuguru/go-dbcontext/internal/api/middleware"
	"github.com/sanosuguru/go-dbcontext/internal/application"
	"github.com/sanosuguru/go-dbcontext/internal/config"
	"github.com/sanosuguru/go-dbcontext/internal/infrastructure/database"
	redisinfra "github.com/sanosuguru/go-dbcontext/internal/infrastructure/redis"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/metrics"
	"github.com/sanosuguru/go-dbcontext/internal/worker"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

const (
	userCacheTTL    = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// App はサーバーの依存関係をまとめたもの
type App struct {
	Config      *config.Config
	Conn        *database.LazyConnector
	Redis       *redis.Client
	TxManager   *dbcontext.Manager
	Metrics     *metrics.Metrics
	UserService *application.UserService
	Echo        *echo.Echo
	Purger      *worker.AuditPurger

	log *zap.Logger
}

// New は設定から App を組み立てる。マイグレーションは実行しない
// データベースへは最初のユニットオブワークで接続する
// Redis が設定されていない場合はキャッシュとロックなしで動作する
func New(cfg *config.Config, log *zap.Logger, reg *prometheus.Registry) (*App, error) {
	if err := database.CheckDriver(cfg.Database.Driver); err != nil {
		return nil, err
	}
	conn := database.NewLazyConnector(&cfg.Database)

	var rc *redis.Client
	if cfg.Redis.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if rc, err = redisinfra.Connect(ctx, &cfg.Redis); err != nil {
			return nil, err
		}
	}

	m := metrics.NewWithRegistry(reg)
	tm := database.NewLazyTxManager(conn, log, m)

	var (
		cache  application.UserCache
		locker worker.Locker
	)
	if rc != nil {
		cache = redisinfra.NewUserCache(rc, userCacheTTL)
		locker = redisinfra.NewLockManager(rc)
	}

	userService := application.NewUserService(tm,
		database.NewUserRepository(tm),
		database.NewAuditRepository(tm),
		cache, m)

	app := &App{
		Config:      cfg,
		Conn:        conn,
		Redis:       rc,
		TxManager:   tm,
		Metrics:     m,
		UserService: userService,
		Purger:      worker.NewAuditPurger(userService, locker, cfg.Worker.AuditPurgeInterval, cfg.Worker.AuditRetention),
		log:         log,
	}
	app.Echo = app.newEcho(reg)
	return app, nil
}

func (a *App) newEcho(reg *prometheus.Registry) *echo.Echo {
	e := api.NewEcho()
	e.Server.ReadTimeout = a.Config.Server.ReadTimeout
	e.Server.WriteTimeout = a.Config.Server.WriteTimeout

	middleware.SetupMiddleware(e, a.log.Named("http"))
	e.Use(middleware.PrometheusMiddleware(a.Metrics, "/metrics"))

	checks := map[string]handler.Checker{
		"database": func(ctx context.Context) error {
			db, err := a.DB(ctx)
			if err != nil {
				return err
			}
			return database.Ping(ctx, db)
		},
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, a.Redis) }
	}
	handler.RegisterRoutes(e, handler.NewHealthHandler(checks), handler.NewUserHandler(a.UserService))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		middleware.MetricsBasicAuth(a.Config.Metrics))
	return e
}

// DB はデータベース接続を返す。未接続であればここで接続する
func (a *App) DB(ctx context.Context) (*sqlx.DB, error) {
	return a.Conn.Client(ctx)
}

// Migrate は埋め込みマイグレーションを実行する
func (a *App) Migrate(ctx context.Context) error {
	db, err := a.DB(ctx)
	if err != nil {
		return err
	}
	return database.RunMigrations(db.DB, a.Config.Database.Driver)
}

// Run はサーバーとワーカーを起動し、ctx がキャンセルされたらグレースフルに停止する
func (a *App) Run(ctx context.Context) error {
	go a.Purger.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", a.Config.Server.Port)
		a.log.Info("サーバー起動", zap.String("addr", addr), zap.String("driver", a.Config.Database.Driver))
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("サーバー起動エラー: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		a.Purger.Stop()
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("サーバーをシャットダウンしています...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.Purger.Stop()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーシャットダウンエラー: %w", err)
	}
	a.log.Info("サーバーが正常にシャットダウンしました")
	return nil
}

// Close はデータベースと Redis の接続を閉じる
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, a.Conn.Close())
	return errors.Join(errs...)
}

// NewRegistry は Go ランタイムとプロセスのメトリクスを含むレジストリを作成する
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
