// Package calendar fetches busy intervals from the Google Calendar API.
//
// Client queries the free/busy endpoint for an identity's primary calendar
// and converts the answer into availability intervals clipped to the query
// window. Requests go through a token bucket rate limiter and transient
// failures are retried with exponential backoff. Rejected token refreshes
// are reported as google.RefreshRejectedError and never retried.
//
// Example usage:
//
//	client := calendar.NewClient(calendar.DefaultConfig(), logger)
//	busy, err := client.FetchBusy(ctx, handle, window)
//	if google.IsRefreshRejected(err) {
//	    err = resolver.Invalidate(ctx, handle, err)
//	}
package calendar
