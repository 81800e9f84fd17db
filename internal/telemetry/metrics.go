package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/assetpipe"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal   metric.Int64Counter
	BuildDuration metric.Float64Histogram

	// Classification metrics
	FilesClassifiedTotal metric.Int64Counter
	AssetsInlinedTotal   metric.Int64Counter
	AssetsEmittedTotal   metric.Int64Counter

	// Output metrics
	BytesWrittenTotal    metric.Int64Counter
	FilesCopiedTotal     metric.Int64Counter
	CompressedFilesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds by result"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	m.FilesClassifiedTotal, _ = meter.Int64Counter(
		"assetpipe.files.classified.total",
		metric.WithDescription("Total number of files matched by a transform rule"),
		metric.WithUnit("{file}"),
	)

	m.AssetsInlinedTotal, _ = meter.Int64Counter(
		"assetpipe.assets.inlined.total",
		metric.WithDescription("Total number of assets embedded as data URLs"),
		metric.WithUnit("{asset}"),
	)

	m.AssetsEmittedTotal, _ = meter.Int64Counter(
		"assetpipe.assets.emitted.total",
		metric.WithDescription("Total number of assets emitted as separate files"),
		metric.WithUnit("{asset}"),
	)

	m.BytesWrittenTotal, _ = meter.Int64Counter(
		"assetpipe.output.bytes.total",
		metric.WithDescription("Total bytes of bundle output written"),
		metric.WithUnit("By"),
	)

	m.FilesCopiedTotal, _ = meter.Int64Counter(
		"assetpipe.copy.files.total",
		metric.WithDescription("Total number of files copied by static copy rules"),
		metric.WithUnit("{file}"),
	)

	m.CompressedFilesTotal, _ = meter.Int64Counter(
		"assetpipe.compress.files.total",
		metric.WithDescription("Total number of files given precompressed sidecars"),
		metric.WithUnit("{file}"),
	)

	return m
}
