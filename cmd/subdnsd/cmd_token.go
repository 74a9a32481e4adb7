package main

import (
	"fmt"
	"time"

	"go_subdns/internal/auth"

	"github.com/spf13/cobra"
)

func newCmdToken() *cobra.Command {
	var (
		uid  int
		ttl  time.Duration
		role string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id (development and operations)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if uid <= 0 {
				return fmt.Errorf("--uid must be positive")
			}

			j, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.Issuer)
			if err != nil {
				return err
			}
			token, err := j.GenerateToken(uid, fmt.Sprintf("user-%d", uid), role, time.Now().Add(ttl))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().IntVar(&uid, "uid", 0, "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&role, "role", "user", "role claim")
	return cmd
}
