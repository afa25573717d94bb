package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"
	"github.com/talkincode/wacrm/config"
)

// newTokenCmd issues a bearer token for the http api when web.jwt_secret is set.
func newTokenCmd(cfgFile *string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an api bearer token signed with web.jwt_secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(*cfgFile)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg.Web.JwtSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func issueToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("web.jwt_secret is not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "wacrm",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
