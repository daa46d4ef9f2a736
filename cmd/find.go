package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/scheduler"
)

func newFindCmd() *cobra.Command {
	var (
		participants []string
		period       string
		duration     string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find common free time",
		Long: `Find time windows, starting now, in which every participant is free.

Every participant must have authorized meetwhen through the server's
/authorize flow. Windows are only listed when strictly longer than --duration.

Durations accept Go syntax (90m, 1h30m) plus a day suffix (7d, 1.5d).`,
		Example: `  meetwhen find --participants alice@example.com,bob@example.com --period 7d --duration 30m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			span, err := parseSpan(period)
			if err != nil {
				return fmt.Errorf("invalid --period: %w", err)
			}
			minDuration, err := parseSpan(duration)
			if err != nil {
				return fmt.Errorf("invalid --duration: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			for i := range participants {
				participants[i] = strings.TrimSpace(participants[i])
			}
			q, err := scheduler.NewQuery(participants, time.Now(), span, minDuration)
			if err != nil {
				return err
			}
			res, err := a.sc.Scheduler().ComputeAvailability(cmd.Context(), q)
			if err != nil {
				return explainFindError(err, a.sc.AuthorizeURL())
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringSliceVar(&participants, "participants", nil, "Comma-separated email addresses (primary calendar ids)")
	cmd.Flags().StringVar(&period, "period", "7d", "How far ahead to search")
	cmd.Flags().StringVar(&duration, "duration", "0", "Only list windows longer than this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("participants")

	return cmd
}

// parseSpan parses a non-negative duration, accepting a "d" suffix for days.
func parseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		if n*float64(24*time.Hour) > math.MaxInt64 {
			return 0, fmt.Errorf("%s is too large", s)
		}
		d = time.Duration(n * float64(24*time.Hour))
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, err
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("%s is negative", s)
	}
	return d, nil
}

func explainFindError(err error, authorizeURL string) error {
	var nc *google.NoCredentialError
	if errors.As(err, &nc) {
		return fmt.Errorf("%w\n\n%s must authorize meetwhen first: %s", err, nc.Identity, authorizeURL)
	}
	return err
}

func printResult(w io.Writer, res *scheduler.Result) error {
	if len(res.Free) == 0 {
		_, err := fmt.Fprintf(w, "No common free windows between %s and %s\n",
			res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tDURATION")
	for _, free := range res.Free {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			free.Start.Local().Format("Mon 2006-01-02 15:04"),
			free.End.Local().Format("Mon 2006-01-02 15:04"),
			free.Duration())
	}
	return tw.Flush()
}
