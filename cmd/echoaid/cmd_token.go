package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/echoaid/pkg/auth"
)

// secretEnv matches the server's auth.secret override.
const secretEnv = "ECHOAID_AUTH_SECRET"

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		secret  string
		issuer  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a device, responder or operator",
		Example: `  ECHOAID_AUTH_SECRET=... echoaid token --subject phone_17 --role device
  echoaid token --subject team_b --role responder --ttl 4h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return errors.New("a signing secret is required: pass --secret or set " + secretEnv)
			}
			tm, err := auth.NewTokenManager(secret, issuer, ttl)
			if err != nil {
				return err
			}
			token, err := tm.Issue(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "device or responder id recorded as reporter")
	cmd.Flags().StringVar(&role, "role", auth.RoleDevice, "device, responder or operator")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (default $"+secretEnv+")")
	cmd.Flags().StringVar(&issuer, "issuer", "echoaid", "token issuer, must match auth.issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
