// Package telemetry wires logging, tracing and metrics for PubFlow
// binaries. It carries no HTTP framework so it builds on every target.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the telemetry components of one process.
type Provider struct {
	Logger         *Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdowns []func(context.Context) error
}

// Init builds every telemetry component described by cfg.
func Init(ctx context.Context, cfg *Config) (*Provider, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tp, stopTracing, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	mp, stopMetrics, err := NewMeterProvider(ctx, cfg)
	if err != nil {
		stopTracing(ctx)
		logger.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	p := &Provider{
		Logger:         logger,
		Metrics:        NewMetrics(cfg.MetricsPrefix),
		TracerProvider: tp,
		MeterProvider:  mp,
		shutdowns:      []func(context.Context) error{stopMetrics, stopTracing},
	}

	logger.WithFields(logrus.Fields{
		"tracing":      cfg.EnableTracing,
		"metrics":      cfg.EnableMetrics,
		"exportToFile": cfg.ExportToFile,
	}).Info("Telemetry initialized")
	return p, nil
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() trace.Tracer {
	return Tracer(p.TracerProvider)
}

// Shutdown flushes exporters and closes the log file.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, stop := range p.shutdowns {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
