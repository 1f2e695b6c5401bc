package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"certregistry/internal/platform/authority"
)

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a registry:write token for an authority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAuthority(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.Authority.TokenTTL
			}
			tokens := authority.NewTokenService(cfg.Authority.SigningKey, cfg.Authority.Issuer, cfg.Authority.Audience)
			token, err := tokens.IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "authority name recorded as the actor of its mutations")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to authority.tokenTtl")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
