package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/meetwhen/internal/availability"
	"github.com/teemow/meetwhen/internal/calendar"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
)

// DefaultMaxConcurrency bounds the number of identities fetched at once.
const DefaultMaxConcurrency = 8

// CredentialResolver is the part of google.Resolver the scheduler needs.
type CredentialResolver interface {
	Resolve(ctx context.Context, identity string) (*google.Handle, error)
	Invalidate(ctx context.Context, h *google.Handle, cause error) error
}

var _ CredentialResolver = (*google.Resolver)(nil)

// Result is the answer to a Query.
type Result struct {
	Window availability.Interval `json:"window"`
	// Busy is the merged union of every identity's busy blocks, clipped to Window.
	Busy []availability.Interval `json:"busy"`
	Free []availability.Interval `json:"free"`
}

// Service computes common availability across identities.
type Service struct {
	resolver       CredentialResolver
	fetcher        calendar.Fetcher
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
	maxConcurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxConcurrency limits parallel fetches. Values below 1 are ignored.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// NewService creates a scheduler over resolver and fetcher.
func NewService(resolver CredentialResolver, fetcher calendar.Fetcher, opts ...Option) *Service {
	s := &Service{
		resolver:       resolver,
		fetcher:        fetcher,
		logger:         slog.Default(),
		maxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "scheduler")
	return s
}

// ComputeAvailability fetches every identity's busy blocks within the
// query window and returns the free windows longer than the minimum
// duration. It fails as a whole: either every identity was fetched or an
// error is returned. A rejected refresh deletes that identity's credentials
// and surfaces as a *google.NoCredentialError.
func (s *Service) ComputeAvailability(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	q, err := q.Normalize()
	if err != nil {
		s.metrics.RecordAvailabilityRequest(ctx, instrumentation.StatusInvalid, time.Since(start))
		return nil, err
	}

	ctx, span := instrumentation.StartSpan(ctx, "scheduler.ComputeAvailability",
		instrumentation.NewSpanAttributeBuilder().
			WithIdentityCount(len(q.Identities)).
			WithWindow(q.Window.Start, q.Window.End).
			WithMinDuration(q.MinDuration).
			Build()...)
	defer span.End()

	res, err := s.compute(ctx, q)
	s.metrics.RecordAvailabilityRequest(ctx, requestStatus(err), time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.logger.Debug("availability request failed",
			logging.IdentityHashes(q.Identities), logging.Err(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrBusyCount, len(res.Busy)),
		attribute.Int(instrumentation.SpanAttrFreeCount, len(res.Free)),
	)
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (s *Service) compute(ctx context.Context, q Query) (*Result, error) {
	busy := make([][]availability.Interval, len(q.Identities))
	errs := make([]error, len(q.Identities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)
	for i, identity := range q.Identities {
		g.Go(func() error {
			b, err := s.fetchOne(gctx, identity, q.Window)
			if err != nil {
				errs[i] = err
				return err
			}
			busy[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, firstFailure(errs)
	}

	var all []availability.Interval
	for _, b := range busy {
		all = append(all, b...)
	}

	merged, err := availability.MergeWithin(all, q.Window)
	if err != nil {
		return nil, err
	}
	return &Result{
		Window: q.Window,
		Busy:   merged,
		Free:   availability.LongerThan(availability.Invert(merged, q.Window), q.MinDuration),
	}, nil
}

func (s *Service) fetchOne(ctx context.Context, identity string, window availability.Interval) ([]availability.Interval, error) {
	h, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	busy, err := s.fetcher.FetchBusy(ctx, h, window)
	s.metrics.RecordCalendarFetch(ctx, identity, fetchStatus(err), time.Since(start))
	if err == nil {
		return busy, nil
	}

	switch {
	case google.IsRefreshRejected(err):
		err = s.resolver.Invalidate(ctx, h, err)
		if google.IsNoCredential(err) {
			s.metrics.RecordCredentialInvalidation(ctx, instrumentation.ReasonRefreshRejected)
		}
		return nil, err
	case google.IsTransient(err), google.IsNoCredential(err):
		return nil, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	}
	return nil, fmt.Errorf("failed to fetch busy intervals for %s: %w", identity, err)
}

// firstFailure picks the error of the lowest-sorted identity that failed on
// its own, skipping fetches that were only cancelled by the group.
func firstFailure(errs []error) error {
	var cancelled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			if cancelled == nil {
				cancelled = err
			}
			continue
		}
		return err
	}
	return cancelled
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return instrumentation.StatusSuccess
	case google.IsRefreshRejected(err):
		return instrumentation.StatusRejected
	case google.IsTransient(err):
		return instrumentation.StatusTransient
	}
	return instrumentation.StatusError
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return instrumentation.StatusSuccess
	case errors.Is(err, ErrInvalidQuery):
		return instrumentation.StatusInvalid
	case google.IsNoCredential(err):
		return instrumentation.StatusNoCredential
	case google.IsTransient(err):
		return instrumentation.StatusTransient
	}
	return instrumentation.StatusError
}
