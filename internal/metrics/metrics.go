// Package metrics 定义了一致性检查和修复的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spatialhub_consistency"

// ConsistencyMetrics 汇总一致性服务暴露的全部指标。
type ConsistencyMetrics struct {
	ChecksTotal      *prometheus.CounterVec   // spatialhub_consistency_checks_total{type,status}
	CheckDuration    *prometheus.HistogramVec // spatialhub_consistency_check_duration_seconds{type}
	OrphanedRecords  prometheus.Gauge         // spatialhub_consistency_orphaned_records
	OrphanedFiles    prometheus.Gauge         // spatialhub_consistency_orphaned_files
	PartialListings  prometheus.Counter       // spatialhub_consistency_partial_listings_total
	RepairItemsTotal *prometheus.CounterVec   // spatialhub_consistency_repair_items_total{side,result}
}

// NewConsistencyMetrics 在 registry 上注册全部指标，registry 为 nil 时使用默认注册器。
func NewConsistencyMetrics(registry prometheus.Registerer) *ConsistencyMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &ConsistencyMetrics{
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Total consistency checks by type and status",
		}, []string{"type", "status"}),

		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Consistency check duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"type"}),

		OrphanedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphaned_records",
			Help:      "Orphaned metadata records found by the last full or incremental check",
		}),

		OrphanedFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphaned_files",
			Help:      "Orphaned storage objects found by the last full or incremental check",
		}),

		PartialListings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_listings_total",
			Help:      "Checks whose storage listing skipped at least one prefix",
		}),

		RepairItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_items_total",
			Help:      "Repaired items by side (records, objects) and result (success, failed)",
		}, []string{"side", "result"}),
	}
}

// ObserveCheck 记录一次检查的结果。
func (m *ConsistencyMetrics) ObserveCheck(checkType, status string, duration time.Duration, orphanedRecords, orphanedFiles int, partial bool) {
	m.ChecksTotal.WithLabelValues(checkType, status).Inc()
	m.CheckDuration.WithLabelValues(checkType).Observe(duration.Seconds())
	m.OrphanedRecords.Set(float64(orphanedRecords))
	m.OrphanedFiles.Set(float64(orphanedFiles))
	if partial {
		m.PartialListings.Inc()
	}
}

// ObserveFailedCheck 记录一次失败的检查，不更新孤立项仪表。
func (m *ConsistencyMetrics) ObserveFailedCheck(checkType string, duration time.Duration) {
	m.ChecksTotal.WithLabelValues(checkType, "error").Inc()
	m.CheckDuration.WithLabelValues(checkType).Observe(duration.Seconds())
}

// ObserveRepair 记录一次修复中成功和失败的项数。
func (m *ConsistencyMetrics) ObserveRepair(side string, success, failed int) {
	m.RepairItemsTotal.WithLabelValues(side, "success").Add(float64(success))
	m.RepairItemsTotal.WithLabelValues(side, "failed").Add(float64(failed))
}
