package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	redisinfra "github.com/sanosuguru/go-dbcontext/internal/infrastructure/redis"
	"github.com/sanosuguru/go-dbcontext/internal/pkg/logger"
	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

const purgeLockKey = "worker:audit-purge"

// AuditPurgeService は古い監査ログを削除するインターフェース
type AuditPurgeService interface {
	PurgeAudits(ctx context.Context, dc *dbcontext.Context, before time.Time) (int, error)
}

// Locker は複数レプリカのうち1つだけが処理するためのロック
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// AuditPurger は保持期間を過ぎた監査ログを定期的に削除するワーカー
type AuditPurger struct {
	service   AuditPurgeService
	locker    Locker
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewAuditPurger は新しいワーカーを作成する。locker は nil でもよい
func NewAuditPurger(s AuditPurgeService, locker Locker, interval, retention time.Duration) *AuditPurger {
	return &AuditPurger{
		service:   s,
		locker:    locker,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はワーカーを開始する。Stop かコンテキストのキャンセルまでブロックする
func (p *AuditPurger) Start(ctx context.Context) {
	logger.Info("監査ログ削除ワーカー開始",
		zap.Duration("interval", p.interval),
		zap.Duration("retention", p.retention),
		zap.Bool("locking", p.locker != nil),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("監査ログ削除ワーカー停止（コンテキストキャンセル）")
			return
		case <-p.stopCh:
			logger.Info("監査ログ削除ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			p.purge(ctx)
		}
	}
}

// Stop はワーカーを停止し、終了を待つ
func (p *AuditPurger) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// purge は1回分の削除を行う
func (p *AuditPurger) purge(ctx context.Context) {
	log := logger.Named("audit-purger")

	run := func(ctx context.Context) error {
		dc := dbcontext.NewContext()
		before := p.now().Add(-p.retention)
		count, err := p.service.PurgeAudits(ctx, dc, before)
		if err != nil {
			return err
		}
		if count > 0 {
			log.Info("監査ログを削除", zap.Int("count", count), zap.Time("before", before), zap.String("context_id", dc.ID()))
		} else {
			log.Debug("削除対象の監査ログなし")
		}
		return nil
	}

	var err error
	if p.locker != nil {
		// 次の実行までにロックが切れるようにする
		err = p.locker.TryWithLock(ctx, purgeLockKey, p.interval, run)
	} else {
		err = run(ctx)
	}

	switch {
	case errors.Is(err, redisinfra.ErrLockNotAcquired):
		log.Debug("他のレプリカが削除中のためスキップ")
	case err != nil:
		log.Error("監査ログの削除に失敗", zap.Error(err))
	}
}
