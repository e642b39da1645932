package observe

import (
	"context"
	"fmt"
	"sort"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Run binds a Metrics instance to an in-process SDK provider so a single CLI
// invocation can log its own totals on exit.
type Run struct {
	Metrics  *Metrics
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewRun creates a manual-reader provider and its instruments.
func NewRun() (*Run, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("create run metrics: %w", err)
	}
	return &Run{Metrics: m, reader: reader, provider: provider}, nil
}

// Summary collects every instrument into one value per metric name: counter
// sums, and observation counts for histograms.
func (r *Run) Summary(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect run metrics: %w", err)
	}

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += int64(dp.Count)
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

// LogAttrs flattens a summary into sorted key/value pairs for slog.
func LogAttrs(summary map[string]int64) []any {
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]any, 0, 2*len(names))
	for _, name := range names {
		attrs = append(attrs, name, summary[name])
	}
	return attrs
}

// Shutdown releases the provider.
func (r *Run) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
