package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/internal/bootstrap"
	"github.com/sanosuguru/go-dbcontext/internal/config"
	"github.com/sanosuguru/go-dbcontext/internal/infrastructure/database"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/logger"
	"github.com/sanosuguru/go-dbcontext/pkg/sqlutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "api",
		Short:         "ユーザー管理 API サーバー",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// .env は任意。環境変数が優先される
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s の読み込みに失敗: %w", envFile, err)
			}
			cfg = config.Load()
			logger.Set(logger.New(cfg.Log.Env, cfg.Log.Level))
			sqlutil.SetLogger(logger.Named("sqlutil"))
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "環境変数ファイル")

	serve := newServeCmd(&cfg)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newMigrateCmd(&cfg))
	return root
}

func newServeCmd(cfg **config.Config) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "API サーバーと監査ログ削除ワーカーを起動する（デフォルト）",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(*cfg, logger.Get(), bootstrap.NewRegistry())
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Warn("接続のクローズに失敗", zap.Error(err))
				}
			}()

			if migrate {
				if err := app.Migrate(ctx); err != nil {
					return err
				}
				logger.Info("マイグレーション完了")
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "起動前にマイグレーションを実行する")
	return cmd
}

func newMigrateCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースマイグレーションを実行する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg
			db, err := database.NewConnection(&c.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db.DB, c.Database.Driver); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", c.Database.Driver)
			return nil
		},
	}
}
