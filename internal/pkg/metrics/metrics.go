package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanosuguru/go-dbcontext/pkg/dbcontext"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// ユニットオブワークの総数（mode: client/transaction, outcome）
	UnitsOfWorkTotal *prometheus.CounterVec

	// ユニットオブワークの実行時間（mode）
	UnitOfWorkDuration *prometheus.HistogramVec

	// ユーザーキャッシュの参照（result: hit/miss/error）
	UserCacheLookups *prometheus.CounterVec

	// 削除した監査ログの件数
	AuditEntriesPurged prometheus.Counter
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		UnitsOfWorkTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_units_of_work_total",
				Help: "Total number of database units of work by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		UnitOfWorkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_unit_of_work_duration_seconds",
				Help:    "Time spent in database units of work",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"mode"},
		),
		UserCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "user_cache_lookups_total",
				Help: "User cache lookups by result",
			},
			[]string{"result"},
		),
		AuditEntriesPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_entries_purged_total",
				Help: "Number of audit entries deleted by the purge worker",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UnitsOfWorkTotal,
		m.UnitOfWorkDuration,
		m.UserCacheLookups,
		m.AuditEntriesPurged,
	)

	return m
}

// ObserveUnitOfWork は dbcontext.Observer の実装
func (m *Metrics) ObserveUnitOfWork(mode dbcontext.Mode, outcome dbcontext.Outcome, elapsed time.Duration) {
	m.UnitsOfWorkTotal.WithLabelValues(string(mode), string(outcome)).Inc()
	m.UnitOfWorkDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

var _ dbcontext.Observer = (*Metrics)(nil)
