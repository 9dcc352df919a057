package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
	"trbowatch/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Telemetry holds the providers installed by Setup, both are nil when no
// telemetry config was found.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errlist []error
	if t.TracerProvider != nil {
		err := t.TracerProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	if t.MeterProvider != nil {
		err := t.MeterProvider.Shutdown(ctx)
		if err != nil {
			errlist = append(errlist, err)
		}
	}
	return errors.Join(errlist...)
}

// Service identifies this process on everything it exports.
type Service struct {
	Name string
	// Command is the subcommand being run, for example "callwatch" or "watch".
	Command string
	// Mode is the scrape mode, empty for commands that don't scrape.
	Mode string
	// Driver is the browser driver, empty when it comes from the config.
	Driver string
}

func (s Service) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(s.Name)}
	if s.Command != "" {
		attrs = append(attrs, attribute.String("trbowatch.command", s.Command))
	}
	if s.Mode != "" {
		attrs = append(attrs, attribute.String("trbowatch.mode", s.Mode))
	}
	if s.Driver != "" {
		attrs = append(attrs, attribute.String("trbowatch.driver", s.Driver))
	}
	return attrs
}

var (
	setupTestLock         sync.Mutex
	setupTestEnvironments = map[string]bool{}
)

// SetupForTesting sets up telemetry for a test binary, only the first call
// per service name does anything.
func SetupForTesting(t testing.TB, serviceName string) func() {
	setupTestLock.Lock()
	defer setupTestLock.Unlock()

	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)
	tel, err := SetupFromEnv(context.Background(), Service{Name: serviceName})
	if err != nil {
		t.Fatal(err)
	}
	return func() {
		err := tel.Shutdown(context.Background())
		if err != nil {
			t.Log("telemetry shutdown:", err)
		}
	}
}

// SetupFromEnv searches up the filesystem from the cwd for a file called
// telemetry.json5 and sets telemetry up with it. Without one the global
// providers are left as no-ops.
func SetupFromEnv(ctx context.Context, svc Service) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no telemetry.json5 found, telemetry export disabled")
		return Telemetry{}, nil
	}
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, svc, config)
}

// Setup installs the global providers for the signals config has an
// endpoint for, the others stay no-ops.
func Setup(ctx context.Context, svc Service, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	r, err := newResource(ctx, svc)
	if err != nil {
		return Telemetry{}, err
	}

	var tel Telemetry
	if config.Otlp.Traces.Enabled() {
		tel.TracerProvider, err = newTraceProvider(ctx, r, config.Otlp.Traces)
		if err != nil {
			return Telemetry{}, err
		}
		otel.SetTracerProvider(tel.TracerProvider)
	}
	if config.Otlp.Metrics.Enabled() {
		tel.MeterProvider, err = newMetricProvider(ctx, r, config.Otlp.Metrics, config.Otlp.metricInterval())
		if err != nil {
			return Telemetry{}, errors.Join(err, tel.Shutdown(ctx))
		}
		otel.SetMeterProvider(tel.MeterProvider)
	}

	slog.Debug(
		"telemetry export configured",
		"service", svc.Name,
		"traces", tel.TracerProvider != nil,
		"metrics", tel.MeterProvider != nil,
	)
	return tel, nil
}

// newResource describes the scraper run: the host and process it runs in and
// which command, mode and driver it was started with.
func newResource(ctx context.Context, svc Service) (*resource.Resource, error) {
	r, err := resource.New(
		ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithAttributes(svc.attributes()...),
	)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), r)
}
