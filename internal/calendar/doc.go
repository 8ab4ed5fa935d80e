// Package calendar is a thin client over the Google Calendar v3 API covering
// the two operations the assistant exposes: listing events in a time range
// and inserting an event.
//
// Every call is timed and traced through the instrumentation package.
// Provider errors are returned wrapped so callers can still reach the
// underlying *googleapi.Error with errors.As.
//
// Example usage:
//
//	client, err := calendar.NewTokenClient(ctx, cred.Token(), httpClient, metrics)
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListEvents(ctx, "primary", start, end)
package calendar
