package availability_tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/meetwhen/internal/availability"
	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/scheduler"
	"github.com/teemow/meetwhen/internal/server"
	"github.com/teemow/meetwhen/internal/tools/common"
)

const (
	defaultPeriodDays = 7.0
	timeLayout        = "2006-01-02 15:04 MST"
)

// now is replaced in tests.
var now = time.Now

// RegisterAvailabilityTools registers the availability tools with the MCP server
func RegisterAvailabilityTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	findAvailabilityTool := mcp.NewTool("find_availability",
		mcp.WithDescription("Find time windows in which every listed person is free, starting now"),
		mcp.WithString("identities",
			mcp.Required(),
			mcp.Description("Comma-separated list of email addresses whose primary calendars to check"),
		),
		mcp.WithNumber("periodDays",
			mcp.Description("How many days ahead to search (default: 7)"),
		),
		mcp.WithNumber("minDurationMinutes",
			mcp.Description("Only return windows strictly longer than this many minutes (default: 0)"),
		),
	)

	s.AddTool(findAvailabilityTool, common.InstrumentedToolHandler("find_availability", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindAvailability(ctx, request, sc)
		}))

	credentialStatusTool := mcp.NewTool("credential_status",
		mcp.WithDescription("Check whether meetwhen holds calendar credentials for a person"),
		mcp.WithString("identity",
			mcp.Required(),
			mcp.Description("Email address (primary calendar id) to check"),
		),
	)

	s.AddTool(credentialStatusTool, common.InstrumentedToolHandler("credential_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCredentialStatus(ctx, request, sc)
		}))

	return nil
}

func handleFindAvailability(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	identities, err := common.IdentitiesFromArgs(args, "identities")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	periodDays, err := common.NumberFromArgs(args, "periodDays", defaultPeriodDays)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	period, err := toDuration(periodDays, 24*time.Hour)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid periodDays: %v", err)), nil
	}

	minutes, err := common.NumberFromArgs(args, "minDurationMinutes", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minDuration, err := toDuration(minutes, time.Minute)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid minDurationMinutes: %v", err)), nil
	}

	q, err := scheduler.NewQuery(identities, now().UTC(), period, minDuration)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid query: %v", err)), nil
	}

	res, err := sc.Scheduler().ComputeAvailability(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(describeError(err, sc)), nil
	}

	return mcp.NewToolResultText(formatResult(q, res)), nil
}

func handleCredentialStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	identity, err := common.IdentityFromArgs(request.GetArguments(), "identity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := sc.Store().Get(ctx, identity)
	if errors.Is(err, credentials.ErrNotFound) {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No credentials stored for %s.\n\nThey need to authorize calendar access at %s", identity, sc.AuthorizeURL())), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read credentials: %v", err)), nil
	}

	result := fmt.Sprintf("Credentials stored for %s\n", identity)
	if rec.RefreshToken != "" {
		result += "  Refresh token: present\n"
	} else {
		result += "  Refresh token: missing (access expires with the current token)\n"
	}
	if !rec.UpdatedAt.IsZero() {
		result += fmt.Sprintf("  Last updated: %s\n", rec.UpdatedAt.UTC().Format(timeLayout))
	}
	return mcp.NewToolResultText(result), nil
}

func describeError(err error, sc *server.ServerContext) string {
	var nc *google.NoCredentialError
	switch {
	case errors.As(err, &nc):
		return fmt.Sprintf(`%s has not granted calendar access (or the grant was revoked).

Ask them to authorize meetwhen at:
   %s

Then run find_availability again.`, nc.Identity, sc.AuthorizeURL())
	case errors.Is(err, scheduler.ErrInvalidQuery):
		return fmt.Sprintf("Invalid query: %v", err)
	case google.IsTransient(err):
		return fmt.Sprintf("Google Calendar is temporarily unavailable, try again later: %v", err)
	default:
		return fmt.Sprintf("Failed to find availability: %v", err)
	}
}

func formatResult(q scheduler.Query, res *scheduler.Result) string {
	header := fmt.Sprintf("Searched %s for %s", formatWindow(res.Window), strings.Join(q.Identities, ", "))
	if q.MinDuration > 0 {
		header += fmt.Sprintf(" (longer than %s)", q.MinDuration)
	}

	if len(res.Free) == 0 {
		return header + "\n\nNo common free windows found"
	}

	result := fmt.Sprintf("%s\n\nFound %d common free window(s):\n\n", header, len(res.Free))
	for i, w := range res.Free {
		result += fmt.Sprintf("%d. %s (%s)\n", i+1, formatWindow(w), w.Duration())
	}
	return result
}

func formatWindow(w availability.Interval) string {
	return fmt.Sprintf("%s to %s", w.Start.Format(timeLayout), w.End.Format(timeLayout))
}

// toDuration converts value units to a duration, rejecting values that do
// not fit.
func toDuration(value float64, unit time.Duration) (time.Duration, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	d := value * float64(unit)
	if d > math.MaxInt64 {
		return 0, fmt.Errorf("%v is too large", value)
	}
	return time.Duration(d), nil
}
