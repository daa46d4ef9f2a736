package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/instrumentation"
	"github.com/teemow/meetwhen/internal/logging"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect and remove stored credentials",
		Long: `Inspect and remove the Google credentials meetwhen stores per identity.

Tokens are never printed in full.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <identity>",
		Short: "Show whether credentials are stored for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				rec, err := a.store.Get(cmd.Context(), args[0])
				if errors.Is(err, credentials.ErrNotFound) {
					return fmt.Errorf("no credentials stored for %s", args[0])
				}
				if err != nil {
					return err
				}
				printRecord(cmd, rec)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <identity>",
		Short: "Forget an identity's credentials without revoking them at Google",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				identity := args[0]
				err := a.store.Delete(cmd.Context(), identity)
				a.audit.LogCredentialEvent(cmd.Context(),
					instrumentation.NewCredentialEvent(instrumentation.ActionDeleted, identity).
						WithSource("cli").
						WithReason(instrumentation.ReasonDeleted).
						WithError(err))
				if err != nil {
					return fmt.Errorf("failed to delete credentials: %w", err)
				}
				a.sc.Metrics().RecordCredentialInvalidation(cmd.Context(), instrumentation.ReasonDeleted)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted credentials for %s\n", identity)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <identity>",
		Short: "Revoke an identity's grant at Google and forget it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				identity := args[0]
				if err := a.resolver.Revoke(cmd.Context(), identity); err != nil {
					if google.IsNoCredential(err) {
						return fmt.Errorf("no credentials stored for %s", identity)
					}
					return err
				}
				a.sc.Metrics().RecordCredentialInvalidation(cmd.Context(), instrumentation.ReasonRevoked)
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked and deleted credentials for %s\n", identity)
				return nil
			})
		},
	})

	return cmd
}

// withApp loads the configuration, builds the app and closes it after fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	return errors.Join(fn(a), a.Close())
}

func printRecord(cmd *cobra.Command, rec *credentials.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Identity:      %s\n", rec.Identity)
	fmt.Fprintf(out, "Access token:  %s\n", logging.SanitizeToken(rec.AccessToken))
	if rec.RefreshToken != "" {
		fmt.Fprintf(out, "Refresh token: %s\n", logging.SanitizeToken(rec.RefreshToken))
	} else {
		fmt.Fprintln(out, "Refresh token: (none)")
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated:       %s\n", rec.UpdatedAt.Local().Format(time.RFC3339))
	}
}
