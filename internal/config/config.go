package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Supported broker transports.
const (
	TransportKafka = "kafka"
	TransportMQTT  = "mqtt"
)

// Config holds all service settings, populated from environment variables.
// The edge and fog commands share one Config and read the sections they need.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Seed            uint64

	Transport string

	KafkaBrokers           []string
	KafkaGroupID           string
	KafkaFrameTopicPattern string
	KafkaSatelliteTopic    string
	KafkaRiskMapTopic      string

	MQTTBroker   string
	MQTTClientID string

	// ConnectMaxRetries bounds broker connection and topic discovery retries
	// before a feed is marked unavailable.
	ConnectMaxRetries int

	BatchSize          int
	BatchFlushInterval time.Duration

	// Station registry configuration.
	StationsFile     string
	StationCacheSize int
	MinIOEnabled     bool
	MinIOEndpoint    string
	MinIOAccessKey   string
	MinIOSecretKey   string
	MinIOBucket      string
	MinIOUseSSL      bool

	TracingEnabled     bool
	TracingServiceName string

	// Edge simulation.
	GridSize            int
	SensorCount         int
	SensorRadius        int
	StepInterval        time.Duration
	FilterPolicy        string
	FilterWindow        int
	AberrationRate      float64
	RegrowthEnabled     bool
	SpontaneousIgnition bool
	SatelliteEvery      int
	IgniteX             int
	IgniteY             int

	// Fog fusion.
	FusionGridSize  int
	ForecastSteps   int
	FireThreshold   float64
	FreshnessWindow time.Duration
	PublishInterval time.Duration
	CycleInterval   time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Seed:            p.unsigned("SEED", 0),

		Transport: strings.ToLower(sharedcfg.EnvOrDefault("TRANSPORT", TransportKafka)),

		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "propagation-group"),
		KafkaFrameTopicPattern: sharedcfg.EnvOrDefault("KAFKA_FRAME_TOPIC_PATTERN", `^sensors\.meteo\..+\.data$`),
		KafkaSatelliteTopic:    sharedcfg.EnvOrDefault("KAFKA_SATELLITE_TOPIC", "sensors.satellite.view"),
		KafkaRiskMapTopic:      sharedcfg.EnvOrDefault("KAFKA_RISKMAP_TOPIC", "maps.watch"),

		MQTTBroker:   sharedcfg.EnvOrDefault("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: os.Getenv("MQTT_CLIENT_ID"),

		ConnectMaxRetries: p.integer("CONNECT_MAX_RETRIES", 5, 0, 100),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		StationsFile:     sharedcfg.EnvOrDefault("STATIONS_FILE", "stations.json"),
		StationCacheSize: p.integer("STATION_CACHE_SIZE", 1000, 1, 1_000_000),
		MinIOEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:      sharedcfg.EnvOrDefault("MINIO_BUCKET", "stations"),
		MinIOUseSSL:      p.boolean("MINIO_USE_SSL", false),

		TracingEnabled:     p.boolean("TRACING_ENABLED", false),
		TracingServiceName: os.Getenv("TRACING_SERVICE_NAME"),

		GridSize:            p.integer("GRID_SIZE", 50, 3, 2000),
		SensorCount:         p.integer("SENSOR_COUNT", 10, 0, 65535),
		SensorRadius:        p.integer("SENSOR_RADIUS", 2, 0, 50),
		StepInterval:        p.duration("STEP_INTERVAL", time.Second),
		FilterPolicy:        strings.ToLower(sharedcfg.EnvOrDefault("FILTER_POLICY", "median")),
		FilterWindow:        p.integer("FILTER_WINDOW", 6, 1, 1000),
		AberrationRate:      p.float("ABERRATION_RATE", 0, 0, 1),
		RegrowthEnabled:     p.boolean("REGROWTH_ENABLED", false),
		SpontaneousIgnition: p.boolean("SPONTANEOUS_IGNITION", false),
		SatelliteEvery:      p.integer("SATELLITE_EVERY", 5, 0, 1_000_000),
		IgniteX:             p.integer("IGNITE_X", -1, -1, 2000),
		IgniteY:             p.integer("IGNITE_Y", -1, -1, 2000),

		FusionGridSize:  p.integer("FUSION_GRID_SIZE", 64, 3, 2000),
		ForecastSteps:   p.integer("FORECAST_STEPS", 10, 0, 1000),
		FireThreshold:   p.float("FIRE_THRESHOLD", 60, -20, 800),
		FreshnessWindow: p.duration("FRESHNESS_WINDOW", 5*time.Second),
		PublishInterval: p.duration("PUBLISH_INTERVAL", 2*time.Second),
		CycleInterval:   p.duration("CYCLE_INTERVAL", time.Second),
	}
	if p.err != nil {
		return nil, p.err
	}

	cfg.MinIOEnabled = cfg.MinIOEndpoint != ""
	if v := os.Getenv("MINIO_ENABLED"); v != "" {
		cfg.MinIOEnabled = v == "true"
	}
	if cfg.TracingServiceName == "" {
		cfg.TracingServiceName = "wildfire-watch"
	}

	if cfg.Transport != TransportKafka && cfg.Transport != TransportMQTT {
		return nil, fmt.Errorf("invalid TRANSPORT %q: want kafka or mqtt", cfg.Transport)
	}
	if cfg.Transport == TransportKafka && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.Transport == TransportMQTT && cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is required")
	}
	if cfg.FilterPolicy != "median" && cfg.FilterPolicy != "mean" {
		return nil, fmt.Errorf("invalid FILTER_POLICY %q: want median or mean", cfg.FilterPolicy)
	}
	if cfg.MinIOEnabled && cfg.MinIOEndpoint == "" {
		return nil, errors.New("MINIO_ENABLED is true but MINIO_ENDPOINT is not set")
	}

	return cfg, nil
}

// parser collects the first error across a sequence of typed env lookups.
type parser struct {
	err error
}

func (p *parser) fail(key string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s", key)
	}
}

func (p *parser) integer(key string, def, lo, hi int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		p.fail(key)
		return def
	}
	return n
}

func (p *parser) unsigned(key string, def uint64) uint64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		p.fail(key)
		return def
	}
	return n
}

func (p *parser) float(key string, def, lo, hi float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < lo || f > hi {
		p.fail(key)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail(key)
		return def
	}
	return d
}
