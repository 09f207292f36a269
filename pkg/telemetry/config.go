package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Deployment environments with dedicated presets.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
}

// Config describes the observability of one covenant node.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Entity is the governed entity address, attached to every exported span.
	Entity string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig

	// ResourceAttributes are extra key/value pairs for the trace resource.
	ResourceAttributes map[string]string
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string // trace, debug, info, warn, error, fatal
	Format string // console or json
	Output string // stdout, stderr or a file path

	EnableCaller bool

	// Burst sampling: SamplingInitial lines per second, then every SamplingThereafter-th.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	TimeFormat string // rfc3339, unix, unixms, unixmicro
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool
	Exporter     string // otlp, stdout, none
	Endpoint     string // OTLP collector, host:port
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration

	Headers  map[string]string
	Insecure bool
}

// MetricsConfig configures the Prometheus collectors and their HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string

	// DefaultHistogramBuckets bound the engine operation latency histogram, in seconds.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures delivery of engine events to subscribers.
type EventsConfig struct {
	Enabled bool

	// EnableAsync hands events to a background goroutine through a BufferSize channel;
	// batches are delivered at MaxBatchSize events or every FlushInterval.
	EnableAsync   bool
	BufferSize    int
	MaxBatchSize  int
	FlushInterval time.Duration
}

// DefaultConfig returns the development preset: console logs on stderr, metrics collected
// but not served until StartMetricsServer, no span export.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "covenant",
		ServiceVersion: "dev",
		Environment:    EnvDevelopment,
		Logging: LoggingConfig{
			Level:              "info",
			Format:             FormatConsole,
			Output:             "stderr",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           ExporterNone,
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			ListenAddress:           ":9090",
			Path:                    "/metrics",
			Namespace:               "covenant",
			DefaultHistogramBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		Events: EventsConfig{
			Enabled:       true,
			EnableAsync:   true,
			BufferSize:    1024,
			MaxBatchSize:  64,
			FlushInterval: time.Second,
		},
		ResourceAttributes: map[string]string{},
	}
}

// ProductionConfig returns the production preset: sampled JSON logs and OTLP export of
// one trace in ten over TLS. Tracing.Endpoint must still be set.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = EnvProduction
	cfg.Logging.Format = FormatJSON
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing = TracingConfig{
		Enabled:            true,
		Exporter:           ExporterOTLP,
		SamplingRate:       0.1,
		MaxExportBatchSize: cfg.Tracing.MaxExportBatchSize,
		ExportTimeout:      cfg.Tracing.ExportTimeout,
		Headers:            map[string]string{},
	}
	return cfg
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...interface{}) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ServiceName == "", "service name is required")
	check(c.ServiceVersion == "", "service version is required")

	check(!logLevels[c.Logging.Level], "invalid log level: %q", c.Logging.Level)
	check(c.Logging.Format != FormatConsole && c.Logging.Format != FormatJSON,
		"invalid log format: %q (must be %s or %s)", c.Logging.Format, FormatConsole, FormatJSON)

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case ExporterOTLP:
			check(c.Tracing.Endpoint == "", "otlp exporter requires an endpoint")
		case ExporterStdout, ExporterNone:
		default:
			check(true, "invalid trace exporter: %q", c.Tracing.Exporter)
		}
	}
	check(c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1,
		"trace sampling rate must be between 0 and 1, got %g", c.Tracing.SamplingRate)

	check(c.Metrics.Enabled && c.Metrics.ListenAddress == "",
		"metrics listen address is required when metrics are enabled")

	if c.Events.Enabled {
		check(c.Events.BufferSize <= 0, "event buffer size must be positive, got %d", c.Events.BufferSize)
		check(c.Events.MaxBatchSize <= 0, "event batch size must be positive, got %d", c.Events.MaxBatchSize)
	}

	return errors.Join(errs...)
}
