package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTracerProvider(opts Options) (*sdktrace.TracerProvider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	ratio := opts.SampleRatio
	if ratio <= 0 {
		ratio = 1
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}

	// Without a collector, spans are still created so trace ids propagate
	// through logs, they are just never exported.
	if opts.JaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.JaegerEndpoint)))
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exp))
	}

	return sdktrace.NewTracerProvider(providerOpts...), nil
}
