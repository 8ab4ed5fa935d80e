package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/calbot/internal/calendar"
)

// Invocation is a tool call as emitted by the model.
type Invocation struct {
	ID        string
	Name      string
	Arguments string
}

// Arguments is the parsed form of an invocation; one of ListEventsArgs or
// CreateEventArgs.
type Arguments interface {
	tool() string
}

// ListEventsArgs are the arguments of list_calendar_events.
type ListEventsArgs struct {
	CalendarID string
	Start      time.Time
	End        time.Time
}

func (ListEventsArgs) tool() string { return ToolListEvents }

// CreateEventArgs are the arguments of create_calendar_event.
type CreateEventArgs struct {
	CalendarID  string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

func (CreateEventArgs) tool() string { return ToolCreateEvent }

type rawArgs struct {
	CalendarID  string `json:"calendar_id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// ParseInvocation validates an invocation and returns its typed arguments.
func ParseInvocation(inv Invocation) (Arguments, error) {
	switch inv.Name {
	case ToolListEvents, ToolCreateEvent:
	default:
		return nil, &UnknownToolError{Name: inv.Name}
	}

	var raw rawArgs
	body := strings.TrimSpace(inv.Arguments)
	if body == "" {
		body = "{}"
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &ArgumentError{Tool: inv.Name, Msg: fmt.Sprintf("Error: Invalid arguments received for %s.", inv.Name)}
	}

	calendarID := strings.TrimSpace(raw.CalendarID)
	if calendarID == "" {
		calendarID = calendar.PrimaryCalendarID
	}

	switch inv.Name {
	case ToolListEvents:
		if raw.StartTime == "" || raw.EndTime == "" {
			return nil, &ArgumentError{Tool: inv.Name, Msg: "Error: start_time and end_time are required for list_calendar_events."}
		}
		start, end, err := parseRange(inv.Name, raw.StartTime, raw.EndTime)
		if err != nil {
			return nil, err
		}
		return ListEventsArgs{CalendarID: calendarID, Start: start, End: end}, nil

	default:
		if strings.TrimSpace(raw.Summary) == "" || raw.StartTime == "" || raw.EndTime == "" {
			return nil, &ArgumentError{Tool: inv.Name, Msg: "Error: summary, start_time, and end_time are required for create_calendar_event."}
		}
		start, end, err := parseRange(inv.Name, raw.StartTime, raw.EndTime)
		if err != nil {
			return nil, err
		}
		return CreateEventArgs{
			CalendarID:  calendarID,
			Summary:     raw.Summary,
			Description: raw.Description,
			Location:    raw.Location,
			Start:       start,
			End:         end,
		}, nil
	}
}

func parseRange(tool, startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parseTime(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, &ArgumentError{Tool: tool, Msg: fmt.Sprintf("Error: start_time %q is not a valid ISO 8601 date/time for %s.", startRaw, tool)}
	}
	end, err := parseTime(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, &ArgumentError{Tool: tool, Msg: fmt.Sprintf("Error: end_time %q is not a valid ISO 8601 date/time for %s.", endRaw, tool)}
	}
	return start, end, nil
}

// parseTime accepts RFC 3339, and local date-times without an offset which
// are taken as UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
}
