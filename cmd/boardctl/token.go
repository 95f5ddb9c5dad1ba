package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/azzy787/task-board-mvp/config"
)

// signToken issues an HS256 token accepted by the service in local auth
// mode.
func signToken(cfg config.Config, userID string, ttl time.Duration, now time.Time) (string, error) {
	if cfg.AuthSecret == "" {
		return "", errors.New("LOCAL_AUTH_SHARED_SECRET must be set")
	}
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    cfg.AuthIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.AuthSecret))
}

func tokenCmd(load loader) *cobra.Command {
	var (
		count  int
		prefix string
		start  int
		ttl    time.Duration
		output string
	)
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue signed session tokens for scripted clients",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 || start < 1 {
				return errors.New("count and start must be at least 1")
			}
			if len(args) > 0 && count > 1 {
				return errors.New("explicit user id cannot be combined with --count")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			now := time.Now()
			tokens := make([]string, count)
			for i := range tokens {
				userID := prefix
				switch {
				case len(args) > 0:
					userID = args[0]
				case count > 1:
					userID = fmt.Sprintf("%s-%d", prefix, start+i)
				}
				if tokens[i], err = signToken(cfg, userID, ttl, now); err != nil {
					return err
				}
			}
			if output != "" {
				if err := writeTokens(output, tokens); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokens[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of tokens to issue")
	cmd.Flags().StringVar(&prefix, "prefix", "load-user", "user id prefix when count > 1")
	cmd.Flags().IntVar(&start, "start", 1, "first index when count > 1")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write all tokens to this file as a JSON array")
	return cmd
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
