package tools

import "fmt"

// AuthRequiredError means the user must run /auth again: there is no usable
// credential, or the provider rejected it.
type AuthRequiredError struct {
	Reason string

	// Status and Message are set when the provider rejected the credential.
	Status  int
	Message string
}

func (e *AuthRequiredError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("Error interacting with Google Calendar: Status: %d, Message: %s. Please try using /auth again.",
			e.Status, messageOrUnknown(e.Message))
	}
	return "Error: Authentication required or token expired. Please use /auth again."
}

// ArgumentError reports tool arguments the model got wrong. Msg is shown verbatim.
type ArgumentError struct {
	Tool string
	Msg  string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

// UnknownToolError reports a tool name that is not offered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Error: Unknown action '%s'.", e.Name)
}

// ProviderError reports a failed calendar call. Status is the HTTP status
// of the provider response, or 0 when no response was received.
type ProviderError struct {
	Tool    string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("Error: An unexpected error occurred while performing the action '%s'.", e.Tool)
	}
	return fmt.Sprintf("Error interacting with Google Calendar: Status: %d, Message: %s", e.Status, messageOrUnknown(e.Message))
}

func messageOrUnknown(msg string) string {
	if msg == "" {
		return "Unknown error"
	}
	return msg
}
