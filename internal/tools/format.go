package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/calbot/internal/calendar"
)

// maxListedEvents caps how many events are rendered back to the chat.
const maxListedEvents = 10

// Result is the outcome of one tool call. Exactly one of Summary or Err is set.
type Result struct {
	Tool    string
	Summary string

	// Payload is rendered as an indented JSON block under PayloadLabel.
	PayloadLabel string
	Payload      any

	Err error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Text renders the result for the user.
func (r Result) Text() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Payload == nil {
		return r.Summary
	}

	data, err := json.MarshalIndent(r.Payload, "", "  ")
	if err != nil {
		return r.Summary
	}

	var b strings.Builder
	b.WriteString(r.Summary)
	b.WriteString("\n")
	b.WriteString(r.PayloadLabel)
	b.WriteString(":\n```json\n")
	b.Write(data)
	b.WriteString("\n```")
	return b.String()
}

func failure(tool string, err error) Result {
	return Result{Tool: tool, Err: err}
}

func listResult(events []calendar.EventSummary) Result {
	shown := events
	summary := fmt.Sprintf("Success: Found %d events.", len(events))
	if len(events) > maxListedEvents {
		shown = events[:maxListedEvents]
		summary += fmt.Sprintf(" (Displaying first %d)", maxListedEvents)
	}
	return Result{
		Tool:         ToolListEvents,
		Summary:      summary,
		PayloadLabel: "Result",
		Payload:      shown,
	}
}

func createResult(event *calendar.EventSummary) Result {
	return Result{
		Tool:         ToolCreateEvent,
		Summary:      fmt.Sprintf("Success: Event created! Link: %s", event.HTMLLink),
		PayloadLabel: "Details",
		Payload:      event,
	}
}
