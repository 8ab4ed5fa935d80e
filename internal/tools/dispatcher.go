package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calbot/internal/calendar"
	"github.com/teemow/calbot/internal/credentials"
	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
)

// CredentialLoader returns a user's valid credential, or nil if there is none.
type CredentialLoader interface {
	Load(ctx context.Context, userID int64) (*credentials.Credential, error)
}

// CalendarAPI is the calendar surface the tools call.
type CalendarAPI interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]calendar.EventSummary, error)
	CreateEvent(ctx context.Context, calendarID string, input calendar.EventInput) (*calendar.EventSummary, error)
}

// ClientFactory builds a calendar client authorized with cred.
type ClientFactory func(ctx context.Context, cred *credentials.Credential) (CalendarAPI, error)

// CalendarClientFactory returns a ClientFactory backed by the Google
// Calendar API. httpClient supplies transport and timeout.
func CalendarClientFactory(httpClient *http.Client, metrics *instrumentation.Metrics, opts ...option.ClientOption) ClientFactory {
	return func(ctx context.Context, cred *credentials.Credential) (CalendarAPI, error) {
		return calendar.NewTokenClient(ctx, cred.Token(), httpClient, metrics, opts...)
	}
}

// Options configures a Dispatcher.
type Options struct {
	Credentials CredentialLoader
	NewClient   ClientFactory
	Metrics     *instrumentation.Metrics
	Audit       *instrumentation.AuditLogger
	Logger      *slog.Logger
}

// Dispatcher executes tool invocations for a user.
type Dispatcher struct {
	creds     CredentialLoader
	newClient ClientFactory
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		creds:     opts.Credentials,
		newClient: opts.NewClient,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		logger:    logging.WithComponent(logger, "tools"),
	}
}

// Dispatch runs one invocation on behalf of userID. It never panics on bad
// input and never retries; every failure is returned inside the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, inv Invocation) Result {
	return d.instrumented(ctx, userID, inv.Name, func(ctx context.Context) Result {
		return d.dispatch(ctx, userID, inv)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, userID int64, inv Invocation) Result {
	logger := logging.WithTool(logging.WithUser(d.logger, userID), inv.Name)

	args, err := ParseInvocation(inv)
	if err != nil {
		logger.Warn("Rejected tool call", logging.Err(err))
		return failure(inv.Name, err)
	}

	cred, err := d.creds.Load(ctx, userID)
	if err != nil || cred == nil {
		if err != nil {
			logger.Error("Failed to load credential", logging.Err(err))
		}
		return failure(inv.Name, &AuthRequiredError{Reason: "no valid credential"})
	}

	client, err := d.newClient(ctx, cred)
	if err != nil {
		logger.Error("Failed to create calendar client", logging.Err(err))
		return failure(inv.Name, &ProviderError{Tool: inv.Name, Message: err.Error()})
	}

	switch a := args.(type) {
	case ListEventsArgs:
		logger.Info("Listing events", "calendar_id", a.CalendarID, "time_min", a.Start, "time_max", a.End)
		events, err := client.ListEvents(ctx, a.CalendarID, a.Start, a.End)
		if err != nil {
			logger.Warn("Calendar list failed", logging.Err(err))
			return failure(inv.Name, classifyProviderError(inv.Name, err))
		}
		return listResult(events)

	case CreateEventArgs:
		logger.Info("Creating event", "calendar_id", a.CalendarID, "start", a.Start, "end", a.End)
		event, err := client.CreateEvent(ctx, a.CalendarID, calendar.EventInput{
			Summary:     a.Summary,
			Description: a.Description,
			Location:    a.Location,
			Start:       a.Start,
			End:         a.End,
			TimeZone:    calendar.DefaultTimeZone,
		})
		if err != nil {
			logger.Warn("Calendar insert failed", logging.Err(err))
			return failure(inv.Name, classifyProviderError(inv.Name, err))
		}
		return createResult(event)
	}

	return failure(inv.Name, fmt.Errorf("unhandled arguments %T", args))
}

// classifyProviderError maps a calendar failure onto the tool error types.
// 401 and 403 mean the credential was rejected.
func classifyProviderError(tool string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return &AuthRequiredError{Reason: "credential rejected by provider", Status: apiErr.Code, Message: apiErr.Message}
		}
		return &ProviderError{Tool: tool, Status: apiErr.Code, Message: apiErr.Message}
	}
	return &ProviderError{Tool: tool, Message: err.Error()}
}
