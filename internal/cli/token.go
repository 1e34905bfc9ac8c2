package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/auth"
)

// NewTokenCmd mints a bearer token for local testing against the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			issuer, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			r := domain.Role(role)
			if r != domain.RoleTeacher && r != domain.RoleStudent {
				return fmt.Errorf("role must be %q or %q", domain.RoleTeacher, domain.RoleStudent)
			}
			token, err := issuer.Issue(domain.Principal{UserID: userID, Role: r, Name: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "teacher or student")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
