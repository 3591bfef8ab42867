package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/auth"
	"github.com/kilianp07/ndf/infra/store"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token commands",
}

var tokenOpts struct {
	user string
	ttl  time.Duration
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a bearer token for a mobile client",
	RunE:  runTokenIssue,
}

func init() {
	f := tokenIssueCmd.Flags()
	f.StringVar(&tokenOpts.user, "user", "", "user id or e-mail")
	f.DurationVar(&tokenOpts.ttl, "ttl", 0, "token lifetime, auth.token_ttl_hours when zero")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	signer, err := auth.NewSigner(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	ttl := tokenOpts.ttl
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL()
	}
	ctx := context.Background()
	return withStore(ctx, func(st *store.Store) error {
		u, err := resolveUser(ctx, st, tokenOpts.user)
		if err != nil {
			return err
		}
		tok, exp, err := signer.Issue(u, ttl)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintln(out, tok); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
		return err
	})
}
