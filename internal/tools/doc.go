// Package tools maps tool calls issued by the language model onto Google
// Calendar operations.
//
// A tool call arrives as a name plus raw JSON arguments. The dispatcher parses
// it into a typed argument value, loads the user's credential (refreshing it
// if needed), calls the calendar and renders the outcome as text for the
// chat. Failures are typed errors whose messages are shown to the user.
//
// Two tools are available:
//   - list_calendar_events: events between start_time and end_time
//   - create_calendar_event: a new event with summary, start_time and end_time
package tools
