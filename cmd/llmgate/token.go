package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/llmgate/pkg/auth"
	"github.com/pario-ai/llmgate/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Issue a bearer token for a configured user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			user, ok := auth.NewStore(cfg.Users).Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown user %q", args[0])
			}
			if user.Disabled {
				return fmt.Errorf("user %q is disabled", user.Username)
			}

			issuer, err := auth.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.TokenTTL())
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = issuer.DefaultTTL()
			}

			token, exp, err := issuer.Issue(user.Username, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl_minutes)")
	return cmd
}
