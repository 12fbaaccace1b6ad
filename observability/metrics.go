package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cdpview"

// MulticallMetrics tracks batched contract reads.
type MulticallMetrics struct {
	batches  *prometheus.CounterVec
	calls    *prometheus.HistogramVec
	duration *prometheus.HistogramVec
}

// FeedMetrics tracks feed store refreshes.
type FeedMetrics struct {
	refreshes   *prometheus.CounterVec
	lastRefresh prometheus.Gauge
	ilks        prometheus.Gauge
}

// SnapshotMetrics tracks CDP snapshot loads and screen sessions.
type SnapshotMetrics struct {
	loads           *prometheus.CounterVec
	latency         prometheus.Histogram
	discarded       prometheus.Counter
	balanceFailures prometheus.Counter
}

var (
	multicallOnce sync.Once
	multicallReg  *MulticallMetrics

	feedOnce sync.Once
	feedReg  *FeedMetrics

	snapshotOnce sync.Once
	snapshotReg  *SnapshotMetrics
)

// Multicall returns the lazily-initialised multicall metrics.
func Multicall() *MulticallMetrics {
	multicallOnce.Do(func() {
		multicallReg = &MulticallMetrics{
			batches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "multicall",
				Name:      "batches_total",
				Help:      "Batched read requests segmented by mode and outcome.",
			}, []string{"mode", "outcome"}),
			calls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "multicall",
				Name:      "calls_per_batch",
				Help:      "Number of contract calls carried by one batch.",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			}, []string{"mode"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "multicall",
				Name:      "batch_duration_seconds",
				Help:      "Latency of batched read requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"mode"}),
		}
		prometheus.MustRegister(multicallReg.batches, multicallReg.calls, multicallReg.duration)
	})
	return multicallReg
}

// Observe records one batch. Mode is "aggregate" or "direct".
func (m *MulticallMetrics) Observe(mode string, calls int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	mode = strings.TrimSpace(mode)
	if mode == "" {
		mode = "unknown"
	}
	m.batches.WithLabelValues(mode, outcome(err)).Inc()
	m.calls.WithLabelValues(mode).Observe(float64(calls))
	m.duration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Feeds returns the lazily-initialised feed metrics.
func Feeds() *FeedMetrics {
	feedOnce.Do(func() {
		feedReg = &FeedMetrics{
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feeds",
				Name:      "refreshes_total",
				Help:      "Feed store refreshes segmented by outcome.",
			}, []string{"outcome"}),
			lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feeds",
				Name:      "last_refresh_timestamp_seconds",
				Help:      "Unix time of the last successful feed refresh.",
			}),
			ilks: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feeds",
				Name:      "ilks",
				Help:      "Number of collateral types held in the feed store.",
			}),
		}
		prometheus.MustRegister(feedReg.refreshes, feedReg.lastRefresh, feedReg.ilks)
	})
	return feedReg
}

// ObserveRefresh records a refresh attempt.
func (m *FeedMetrics) ObserveRefresh(at time.Time, ilks int, err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.lastRefresh.Set(float64(at.Unix()))
		m.ilks.Set(float64(ilks))
	}
}

// Snapshots returns the lazily-initialised snapshot metrics.
func Snapshots() *SnapshotMetrics {
	snapshotOnce.Do(func() {
		snapshotReg = &SnapshotMetrics{
			loads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "loads_total",
				Help:      "CDP snapshot loads segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "load_duration_seconds",
				Help:      "Latency of the joined CDP snapshot reads.",
				Buckets:   prometheus.DefBuckets,
			}),
			discarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "discarded_total",
				Help:      "Snapshots dropped because a newer selection superseded them.",
			}),
			balanceFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wallet",
				Name:      "balance_failures_total",
				Help:      "Wallet balance lookups that failed and were ignored.",
			}),
		}
		prometheus.MustRegister(snapshotReg.loads, snapshotReg.latency, snapshotReg.discarded, snapshotReg.balanceFailures)
	})
	return snapshotReg
}

// ObserveLoad records a snapshot load.
func (m *SnapshotMetrics) ObserveLoad(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(outcome(err)).Inc()
	m.latency.Observe(duration.Seconds())
}

// RecordDiscard counts a superseded snapshot.
func (m *SnapshotMetrics) RecordDiscard() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

// RecordBalanceFailure counts an ignored wallet balance failure.
func (m *SnapshotMetrics) RecordBalanceFailure() {
	if m == nil {
		return
	}
	m.balanceFailures.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
