// Package reporting forwards failed flow steps to Sentry.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/flow"
)

// Config holds Sentry client settings. An empty DSN disables reporting.
type Config struct {
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	Release     string  `yaml:"release"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Reporter captures step failures as Sentry events
type Reporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// New creates a reporter from config. With an empty DSN the reporter is a
// no-op and Enabled returns false.
func New(config Config, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DSN == "" {
		logger.Debug("Sentry DSN not set, failure reporting disabled")
		return &Reporter{logger: logger}, nil
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 1.0
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         config.DSN,
		Environment: config.Environment,
		Release:     config.Release,
		SampleRate:  config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	logger.Info("Sentry failure reporting enabled",
		zap.String("environment", config.Environment))
	return NewWithClient(client, logger), nil
}

// NewWithClient creates a reporter on an existing client.
func NewWithClient(client *sentry.Client, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: logger,
	}
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r.hub != nil
}

// Report captures one step failure, tagged with the processor, article and
// trace id.
func (r *Reporter) Report(ctx context.Context, f flow.StepFailure) {
	if r.hub == nil || f.Err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("processor", f.Processor)
		scope.SetTag("trace_id", f.TraceID)
		if f.ArticleID != "" {
			scope.SetTag("article_id", f.ArticleID)
		}
		scope.SetFingerprint([]string{"{{ default }}", f.Processor})

		if id := r.hub.CaptureException(f.Err); id != nil {
			r.logger.Debug("Reported step failure",
				zap.String("processor", f.Processor),
				zap.String("event_id", string(*id)))
		}
	})
}

// Hook returns Report as a flow failure hook.
func (r *Reporter) Hook() flow.FailureHook {
	return r.Report
}

// Flush waits up to timeout for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
