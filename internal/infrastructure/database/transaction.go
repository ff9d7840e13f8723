package database

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// NewTxManager は接続済みの sqlx.DB を使うトランザクションマネージャーを作成する
// observer は nil でもよい
func NewTxManager(db *sqlx.DB, logger *zap.Logger, observer dbcontext.Observer) *dbcontext.Manager {
	opts := []dbcontext.Option{
		dbcontext.WithDriverName(db.DriverName()),
		dbcontext.WithLogger(logger.Named("dbcontext")),
	}
	if observer != nil {
		opts = append(opts, dbcontext.WithObserver(observer))
	}
	return dbcontext.NewManager(dbcontext.StaticClient(db), opts...)
}

// NewLazyTxManager は最初のユニットオブワークで接続するトランザクションマネージャーを作成する
func NewLazyTxManager(conn *LazyConnector, logger *zap.Logger, observer dbcontext.Observer) *dbcontext.Manager {
	opts := []dbcontext.Option{
		dbcontext.WithDriverName(conn.cfg.Driver),
		dbcontext.WithLogger(logger.Named("dbcontext")),
	}
	if observer != nil {
		opts = append(opts, dbcontext.WithObserver(observer))
	}
	return dbcontext.NewManager(conn.Client, opts...)
}
