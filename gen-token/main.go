package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := tokenOptions{
		Secret:   os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		Audience: os.Getenv("AUTH0_AUDIENCE"),
		Issuer:   os.Getenv("LOCAL_AUTH_ISSUER"),
	}
	var (
		count  int
		start  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "gen-token [user-id]",
		Short: "Issue local HS256 bearer tokens for the todo API",
		Long: `gen-token signs tokens accepted by todo-api when LOCAL_AUTH_MODE=hs256.

With --count greater than one, user ids are generated as <sub>-<n> starting at --start
and every token is written to --output as a JSON array.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 || start < 1 {
				return errors.New("count and start must be at least 1")
			}
			if len(args) > 0 {
				if count > 1 {
					return errors.New("explicit user id cannot be combined with --count")
				}
				opts.Subject = args[0]
			}

			tokens, err := generateTokens(opts, count, start, time.Now())
			if err != nil {
				log.WithError(err).Error("token not issued")
				return err
			}
			if output != "" {
				if err := writeTokens(output, tokens); err != nil {
					return fmt.Errorf("write tokens: %w", err)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tokens[0])
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Subject, "sub", "local-user", "subject (user id) claim, or prefix when --count > 1")
	f.StringVar(&opts.Email, "email", "", "email claim")
	f.StringVar(&opts.Name, "name", "", "display name claim")
	f.StringVar(&opts.Audience, "aud", opts.Audience, "audience claim (defaults to AUTH0_AUDIENCE)")
	f.StringVar(&opts.Issuer, "iss", opts.Issuer, "issuer claim (defaults to LOCAL_AUTH_ISSUER)")
	f.DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	f.StringVar(&opts.Secret, "secret", opts.Secret, "shared secret (defaults to LOCAL_AUTH_SHARED_SECRET)")
	f.IntVar(&count, "count", 1, "number of tokens to generate")
	f.IntVar(&start, "start", 1, "first index for generated user ids")
	f.StringVarP(&output, "output", "o", "", "file to write the tokens to as a JSON array")
	return cmd
}

func generateTokens(opts tokenOptions, count, start int, now time.Time) ([]string, error) {
	prefix := opts.Subject
	tokens := make([]string, count)
	for i := range count {
		if count > 1 {
			opts.Subject = fmt.Sprintf("%s-%d", prefix, start+i)
		}
		tok, err := signToken(opts, now)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
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
