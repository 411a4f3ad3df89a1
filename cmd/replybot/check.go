package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/xapi"
)

var checkPost bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the X credentials, optionally by publishing a test post",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkCredentials(cmd.Context(), cfg, newXClient(cfg), checkPost, cmd.OutOrStdout(), time.Now)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkPost, "post", false, "publish a test post from the account")
	rootCmd.AddCommand(checkCmd)
}

type accountClient interface {
	Me(ctx context.Context) (xapi.User, error)
	PostTweet(ctx context.Context, text string) (string, error)
}

func checkCredentials(ctx context.Context, cfg *config.Config, x accountClient, post bool, out io.Writer, now func() time.Time) error {
	if err := cfg.RequireSend(); err != nil {
		return err
	}
	if err := cfg.RequireSearch(); err != nil {
		fmt.Fprintf(out, "warning: %v\n", err)
	}

	user, err := x.Me(ctx)
	if err != nil {
		return fmt.Errorf("user access token rejected: %w", err)
	}
	fmt.Fprintf(out, "Authenticated as @%s (%s)\n", user.Username, user.ID)

	if !post {
		return nil
	}
	text := fmt.Sprintf("Test post from %s at %s", serviceName, now().UTC().Format(time.RFC3339))
	id, err := x.PostTweet(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to publish test post: %w", err)
	}
	fmt.Fprintf(out, "Test post published: %s\n", id)
	return nil
}
