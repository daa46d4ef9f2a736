package google

import calendar "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the scopes requested during authorization.
// Only read access to calendars is needed to compute free/busy windows.
var DefaultOAuthScopes = []string{
	calendar.CalendarReadonlyScope,
}
