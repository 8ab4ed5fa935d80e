package tools

// Tool names
const (
	ToolListEvents  = "list_calendar_events"
	ToolCreateEvent = "create_calendar_event"
)

// Definition describes a tool to the language model. Parameters is a JSON
// schema object.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// Definitions returns the tools offered to the model.
func Definitions() []Definition {
	calendarID := stringProp("The calendar ID (default: 'primary').")

	return []Definition{
		{
			Name:        ToolListEvents,
			Description: "Get a list of events from the user's Google Calendar within a specified time range.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"calendar_id": calendarID,
					"start_time":  stringProp("The start date/time in ISO 8601 format (e.g., 2025-04-17T00:00:00Z). Required."),
					"end_time":    stringProp("The end date/time in ISO 8601 format (e.g., 2025-04-18T00:00:00Z). Required."),
				},
				"required": []string{"start_time", "end_time"},
			},
		},
		{
			Name:        ToolCreateEvent,
			Description: "Create a new event on the user's Google Calendar.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"calendar_id": calendarID,
					"summary":     stringProp("The title or summary of the event. Required."),
					"start_time":  stringProp("The start date/time in ISO 8601 format (e.g., 2025-04-17T10:00:00Z). Required."),
					"end_time":    stringProp("The end date/time in ISO 8601 format (e.g., 2025-04-17T11:00:00Z). Required."),
					"description": stringProp("A description for the event."),
					"location":    stringProp("The location of the event."),
				},
				"required": []string{"summary", "start_time", "end_time"},
			},
		},
	}
}
