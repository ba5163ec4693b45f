package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wildfire"

// Metrics holds the Prometheus counters, histograms, and gauges for the edge
// and fog processes. Each process only moves the series it owns.
type Metrics struct {
	// Ingest pipeline metrics, labelled by feed (frames, satellite).
	MessagesConsumed        *prometheus.CounterVec
	MessagesLoaded          *prometheus.CounterVec
	TransformErrors         *prometheus.CounterVec
	PipelineRunning         *prometheus.GaugeVec
	FeedUnavailable         *prometheus.GaugeVec
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Fusion metrics.
	FusionCycles        prometheus.Counter
	FusionCycleDuration prometheus.Histogram
	RiskMapsPublished   prometheus.Counter
	RiskMapsThrottled   prometheus.Counter
	PublishErrors       prometheus.Counter
	KnownDevices        prometheus.Gauge
	RiskCells           *prometheus.GaugeVec // labels: state={at_risk,burning,burnt}

	// Edge simulation metrics.
	SimulationSteps    prometheus.Counter
	FireCells          *prometheus.GaugeVec // labels: state={burning,burnt}
	FramesPublished    prometheus.Counter
	FramePublishErrors prometheus.Counter
	SatelliteViews     prometheus.Counter

	// Station registry metrics.
	StationLookups *prometheus.CounterVec // labels: outcome={hit,miss,error}
	StationCache   *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from a feed.",
		}, []string{"feed"}),
		MessagesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_loaded_total",
			Help:      "Total messages handed to the fusion engine.",
		}, []string{"feed"}),
		TransformErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total malformed or out-of-range messages dropped.",
		}, []string{"feed"}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the feed's pipeline is active, 0 when shut down.",
		}, []string{"feed"}),
		FeedUnavailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_unavailable",
			Help:      "1 when a feed exhausted its retries and stopped.",
		}, []string{"feed"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per extracted batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		FusionCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_cycles_total",
			Help:      "Total fusion cycles run.",
		}),
		FusionCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fusion_cycle_duration_seconds",
			Help:      "Duration of one interpolate-readjust-forecast-combine cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RiskMapsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_maps_published_total",
			Help:      "Total risk maps published.",
		}),
		RiskMapsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_maps_throttled_total",
			Help:      "Risk map publishes skipped by the throttle.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_map_publish_errors_total",
			Help:      "Risk map publish failures.",
		}),
		KnownDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_devices",
			Help:      "Devices with at least one accepted reading.",
		}),
		RiskCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_cells",
			Help:      "Cells per state in the latest fused map.",
		}, []string{"state"}),
		SimulationSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_steps_total",
			Help:      "Total edge simulation steps.",
		}),
		FireCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fire_cells",
			Help:      "Cells per fire state in the edge simulation.",
		}, []string{"state"}),
		FramesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_published_total",
			Help:      "Telemetry frames published by the edge.",
		}),
		FramePublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_publish_errors_total",
			Help:      "Telemetry frame publish failures.",
		}),
		SatelliteViews: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "satellite_views_published_total",
			Help:      "Synthetic satellite views published by the edge.",
		}),
		StationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_lookups_total",
			Help:      "Station registry lookups by outcome.",
		}, []string{"outcome"}),
		StationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_cache_total",
			Help:      "Station cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesLoaded,
		m.TransformErrors,
		m.PipelineRunning,
		m.FeedUnavailable,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.FusionCycles,
		m.FusionCycleDuration,
		m.RiskMapsPublished,
		m.RiskMapsThrottled,
		m.PublishErrors,
		m.KnownDevices,
		m.RiskCells,
		m.SimulationSteps,
		m.FireCells,
		m.FramesPublished,
		m.FramePublishErrors,
		m.SatelliteViews,
		m.StationLookups,
		m.StationCache,
	}
}
