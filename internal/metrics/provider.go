package metrics

import (
	"context"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider sets up an OTel MeterProvider backed by a Prometheus
// exporter, the same bridge MrWong99-glyphoxa's internal/observe.InitProvider
// uses, trimmed to metrics only (no tracer provider — this repo does not
// wire distributed tracing). Returns a shutdown function to call from main.
func InitProvider() (mp *sdkmetric.MeterProvider, shutdown func(context.Context) error, err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
	)

	return provider, provider.Shutdown, nil
}
