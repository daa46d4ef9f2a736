package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/meetwhen/internal/availability"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
)

// PrimaryCalendar is the calendar id Google resolves to the account's own calendar.
const PrimaryCalendar = "primary"

// Fetcher returns the busy intervals of one identity within a window.
type Fetcher interface {
	FetchBusy(ctx context.Context, h *google.Handle, window availability.Interval) ([]availability.Interval, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, h *google.Handle, window availability.Interval) ([]availability.Interval, error)

// FetchBusy calls f.
func (f FetcherFunc) FetchBusy(ctx context.Context, h *google.Handle, window availability.Interval) ([]availability.Interval, error) {
	return f(ctx, h, window)
}

// Config tunes the calendar client.
type Config struct {
	// Endpoint overrides the API base URL, e.g. "http://127.0.0.1:8080/calendar/v3/".
	Endpoint string

	RateLimit RateLimitConfig

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the production client settings.
func DefaultConfig() Config {
	return Config{
		RateLimit:      DefaultRateLimit,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Client talks to the Google Calendar API on behalf of resolved identities.
type Client struct {
	cfg     Config
	limiter *RateLimiter
	logger  *slog.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a calendar client. A nil logger uses slog.Default().
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Client{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logging.WithComponent(logger, "calendar"),
	}
}

// FetchBusy queries the free/busy endpoint for the identity's primary
// calendar. The result is clipped to window. Failures are classified with
// google.ClassifyTokenError so callers can tell rejected credentials from
// transient outages.
func (c *Client) FetchBusy(ctx context.Context, h *google.Handle, window availability.Interval) ([]availability.Interval, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if window.Duration() == 0 {
		return nil, nil
	}

	ctx, span := instrumentation.StartCalendarSpan(ctx, "FetchBusy",
		instrumentation.NewSpanAttributeBuilder().
			WithIdentity(h.Identity).
			WithWindow(window.Start, window.End).
			Build()...)
	defer span.End()

	svc, err := c.service(ctx, h)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	busy, err := retry(ctx, c, h.Identity, func() ([]availability.Interval, error) {
		return c.queryFreeBusy(ctx, svc, h.Identity, window)
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int(instrumentation.SpanAttrBusyCount, len(busy)))
	instrumentation.SetSpanSuccess(span)
	return busy, nil
}

// PrimaryCalendarID returns the id of the identity's primary calendar, which
// is the account's email address.
func (c *Client) PrimaryCalendarID(ctx context.Context, h *google.Handle) (string, error) {
	ctx, span := instrumentation.StartCalendarSpan(ctx, "GetPrimaryCalendar")
	defer span.End()

	svc, err := c.service(ctx, h)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}

	id, err := retry(ctx, c, h.Identity, func() (string, error) {
		cal, err := svc.Calendars.Get(PrimaryCalendar).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to get primary calendar: %w", err)
		}
		return cal.Id, nil
	})
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("primary calendar has no id")
	}
	return id, nil
}

func (c *Client) service(ctx context.Context, h *google.Handle) (*calendar.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(h.HTTPClient(ctx))}
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

func (c *Client) queryFreeBusy(ctx context.Context, svc *calendar.Service, identity string, window availability.Interval) ([]availability.Interval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin: window.Start.Format(time.RFC3339),
		TimeMax: window.End.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: PrimaryCalendar}},
	}

	resp, err := svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query freebusy: %w", err)
	}

	cal, ok := resp.Calendars[PrimaryCalendar]
	if !ok && len(resp.Calendars) == 1 {
		for _, only := range resp.Calendars {
			cal = only
		}
		ok = true
	}
	if !ok {
		return nil, fmt.Errorf("freebusy response has no entry for the primary calendar")
	}

	if len(cal.Errors) > 0 {
		return nil, newCalendarError(identity, cal.Errors)
	}

	busy := make([]availability.Interval, 0, len(cal.Busy))
	for i, period := range cal.Busy {
		iv, err := parsePeriod(period)
		if err != nil {
			return nil, fmt.Errorf("busy period %d: %w", i, err)
		}
		busy = append(busy, iv)
	}

	return availability.Clip(busy, window), nil
}

func parsePeriod(p *calendar.TimePeriod) (availability.Interval, error) {
	if p == nil {
		return availability.Interval{}, fmt.Errorf("empty time period")
	}
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return availability.Interval{}, fmt.Errorf("invalid start %q: %w", p.Start, err)
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return availability.Interval{}, fmt.Errorf("invalid end %q: %w", p.End, err)
	}
	iv := availability.Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return availability.Interval{}, err
	}
	return iv, nil
}

// CalendarError reports errors Google attached to a calendar in a free/busy answer.
type CalendarError struct {
	Reasons []string
}

func (e *CalendarError) Error() string {
	return "calendar reported errors: " + strings.Join(e.Reasons, ", ")
}

func newCalendarError(identity string, errs []*calendar.Error) error {
	cerr := &CalendarError{}
	transient := false
	for _, e := range errs {
		cerr.Reasons = append(cerr.Reasons, e.Reason)
		if e.Reason == "backendError" || e.Reason == "internalError" {
			transient = true
		}
	}
	if transient {
		return &google.TransientError{Identity: identity, Err: cerr}
	}
	return cerr
}

// retry runs op under the client's rate limiter, retrying transient failures
// with exponential backoff. Anything else stops the loop immediately.
func retry[T any](ctx context.Context, c *Client, identity string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		attempt++

		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}

		res, err := op()
		if err == nil {
			return res, nil
		}

		classified := google.ClassifyTokenError(identity, err)
		if !google.IsTransient(classified) {
			return zero, backoff.Permanent(classified)
		}

		if google.IsRateLimited(err) {
			c.limiter.RecordRateLimitError(retryAfter(err))
		}
		c.logger.Debug("retrying calendar request",
			logging.IdentityHash(identity),
			slog.Int(instrumentation.SpanAttrAttempt, attempt),
			logging.Err(err))
		return zero, classified
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.cfg.MaxRetries+1))
}

func retryAfter(err error) time.Duration {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return 0
	}
	secs, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
