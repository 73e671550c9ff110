package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
// nil レシーバーでも記録系メソッドは安全に呼べる
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約操作の総数（operation: submit/confirm/cancel/update/complete, outcome: success/エラー種別）
	ReservationsTotal *prometheus.CounterVec

	// 台帳の楽観的ロック競合数（operation: reserve/release/resize）
	LedgerConflictsTotal *prometheus.CounterVec

	// 台帳を伴うトランザクションの所要時間（operation, outcome）
	LedgerOperationDuration *prometheus.HistogramVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 状態別の予約数（status: pending, confirmed, cancelled, completed）
	ActiveReservations *prometheus.GaugeVec
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
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation operations",
			},
			[]string{"operation", "outcome"},
		),
		LedgerConflictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_conflicts_total",
				Help: "Optimistic lock conflicts observed on the capacity ledger",
			},
			[]string{"operation"},
		),
		LedgerOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of transactions touching the capacity ledger",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "outcome"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ActiveReservations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reservations_by_status",
				Help: "Last observed number of reservations per status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.LedgerConflictsTotal,
		m.LedgerOperationDuration,
		m.DistributedLockDuration,
		m.ActiveReservations,
	)

	return m
}

// RecordReservation は予約操作の結果を記録する
func (m *Metrics) RecordReservation(operation, outcome string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordLedgerConflict は台帳の競合を1件記録する
func (m *Metrics) RecordLedgerConflict(operation string) {
	if m == nil {
		return
	}
	m.LedgerConflictsTotal.WithLabelValues(operation).Inc()
}

// ObserveLedger は台帳操作の所要時間を記録する
func (m *Metrics) ObserveLedger(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerOperationDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

// ObserveLock は分散ロック操作の所要時間を記録する
func (m *Metrics) ObserveLock(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// SetReservationCounts は状態別の予約数を反映する
func (m *Metrics) SetReservationCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.ActiveReservations.WithLabelValues(status).Set(float64(n))
	}
}

var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
