// Package telemetry forwards enhanced errors to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
)

// Categories that describe bad input rather than faults are not reported.
var quietCategories = map[errors.Category]struct{}{
	errors.CategoryValidation:   {},
	errors.CategoryPrecondition: {},
}

// Reporter captures enhanced errors on its own hub.
type Reporter struct {
	hub *sentry.Hub
}

// New builds a reporter from settings. It does not install itself.
func New(settings conf.SentrySettings, release string) (*Reporter, error) {
	return newReporter(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		SampleRate:  settings.SampleRate,
		Release:     release,
	})
}

func newReporter(opts sentry.ClientOptions) (*Reporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry client: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Install makes r the process-wide error reporter.
func (r *Reporter) Install() {
	errors.SetReporter(r.Report)
}

// Report sends ee with its component, category and context attached.
func (r *Reporter) Report(ee *errors.EnhancedError) {
	if _, quiet := quietCategories[ee.GetCategory()]; quiet {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		if c := ee.GetComponent(); c != "" {
			scope.SetTag("component", c)
		}
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		r.hub.CaptureException(ee)
	})
}

// Close uninstalls the reporter and flushes pending events.
func (r *Reporter) Close(timeout time.Duration) {
	errors.SetReporter(nil)
	r.hub.Flush(timeout)
}
