package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Duration of outbound network requests",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Number of outbound network requests",
	}, []string{"component", "operation", "target", "status"})

	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pages_fetched_total",
		Help: "Listing pages fetched",
	}, []string{"category"})

	PagingAborted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_paging_aborted_total",
		Help: "Collections stopped by the page limit",
	}, []string{"category"})

	RecordsCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_collected_total",
		Help: "Raw records collected from a source",
	}, []string{"source", "category"})

	RecordsDuplicated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_duplicated_total",
		Help: "Records dropped as duplicates",
	}, []string{"category"})

	RecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_skipped_total",
		Help: "Records dropped for a missing natural key",
	}, []string{"category"})

	PartitionIDs = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_partition_ids",
		Help: "Identifier counts per partition and kind",
	}, []string{"source", "category", "kind"})

	ItemsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_items_delivered_total",
		Help: "Items handed to the delivery collaborator",
	}, []string{"source", "category"})

	StaleCursor = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_stale_cursor_total",
		Help: "Feed runs where the last-seen sequence was outside the feed window",
	}, []string{"category"})

	SnapshotPayloadBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingest_snapshot_payload_bytes",
		Help: "Stored snapshot payload size",
	}, []string{"source", "category"})

	RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_run_duration_seconds",
		Help: "Duration of the last run",
	})

	RunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_run_success",
		Help: "1 when the last run succeeded",
	})

	RunFinished = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_run_last_finished_timestamp_seconds",
		Help: "Unix time of the last finished run",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		PagesFetched,
		PagingAborted,
		RecordsCollected,
		RecordsDuplicated,
		RecordsSkipped,
		PartitionIDs,
		ItemsDelivered,
		StaleCursor,
		SnapshotPayloadBytes,
		RunDuration,
		RunSuccess,
		RunFinished,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObservePartition выставляет gauges current/seen/new/missing для партиции.
func ObservePartition(source, category string, current, seen, newCount, missing int) {
	PartitionIDs.WithLabelValues(source, category, "current").Set(float64(current))
	PartitionIDs.WithLabelValues(source, category, "seen").Set(float64(seen))
	PartitionIDs.WithLabelValues(source, category, "new").Set(float64(newCount))
	PartitionIDs.WithLabelValues(source, category, "missing").Set(float64(missing))
}

// ObserveRun записывает итог завершённого запуска.
func ObserveRun(start time.Time, err error) {
	RunDuration.Set(time.Since(start).Seconds())
	if err != nil {
		RunSuccess.Set(0)
	} else {
		RunSuccess.Set(1)
	}
	RunFinished.SetToCurrentTime()
}

// Push отправляет собранные метрики в Pushgateway.
func Push(ctx context.Context, url, job, instance string, g prometheus.Gatherer) error {
	pusher := push.New(url, job).Gatherer(g)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
