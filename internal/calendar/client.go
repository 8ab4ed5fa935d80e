package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/calbot/internal/instrumentation"
)

// Client wraps the Google Calendar service
type Client struct {
	svc     *calendar.Service
	metrics *instrumentation.Metrics
}

// NewClient creates a Client on top of an already authorized HTTP client.
// Extra options (for example option.WithEndpoint in tests) are passed to the
// generated service.
func NewClient(ctx context.Context, httpClient *http.Client, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{svc: svc, metrics: metrics}, nil
}

// NewTokenClient creates a Client that authorizes requests with token.
//
// The token is used as-is; refreshing is the credential store's job.
// base supplies the transport and timeout and may be nil.
func NewTokenClient(ctx context.Context, token *oauth2.Token, base *http.Client, metrics *instrumentation.Metrics, opts ...option.ClientOption) (*Client, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	if base != nil {
		httpClient.Timeout = base.Timeout
	}
	return NewClient(ctx, httpClient, metrics, opts...)
}

// ListEvents lists events in a calendar within a time range, expanding
// recurring events and ordering by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) (_ []EventSummary, err error) {
	ctx, finish := c.observe(ctx, instrumentation.OperationList, calendarID)
	defer func() { finish(err) }()

	events, err := c.svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	summaries := make([]EventSummary, 0, len(events.Items))
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}
	return summaries, nil
}

// CreateEvent creates a new calendar event
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (_ *EventSummary, err error) {
	ctx, finish := c.observe(ctx, instrumentation.OperationCreate, calendarID)
	defer func() { finish(err) }()

	tz := input.TimeZone
	if tz == "" {
		tz = DefaultTimeZone
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start: &calendar.EventDateTime{
			DateTime: input.Start.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: input.End.Format(time.RFC3339),
			TimeZone: tz,
		},
	}

	created, err := c.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	summary := toEventSummary(created)
	return &summary, nil
}

// observe opens a span for a Calendar API call and returns a func that
// records its outcome.
func (c *Client) observe(ctx context.Context, operation, calendarID string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := instrumentation.StartCalendarSpan(ctx, operation, calendarID)

	return ctx, func(err error) {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		c.metrics.RecordCalendarOperation(ctx, operation, status, time.Since(start))
		span.End()
	}
}
