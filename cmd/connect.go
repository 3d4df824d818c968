package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxbuckets/internal/google"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/server"
)

func newConnectCmd() *cobra.Command {
	var (
		userID string
		code   string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize read-only Gmail access for a user",
		Long: `Authorize read-only Gmail access for a user and store the token.

The command prints a Google consent URL. Open it, approve access, and paste
either the authorization code or the whole URL the browser was redirected to.
The token is stored in the database and refreshed automatically.

Requires --google-client-id, --google-client-secret and --google-redirect-uri
(or GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			if err := applyEnv(cmd, []envBinding{{"user", "INBOX_USER"}}); err != nil {
				return err
			}
			if opts.googleClientID == "" || opts.googleClientSecret == "" || opts.googleRedirectURI == "" {
				return fmt.Errorf("google client id, client secret and redirect URI are required")
			}

			ctx := cmd.Context()
			logger := logging.New(cmd.ErrOrStderr(), logging.FormatText, opts.debug)
			a, err := newApp(ctx, opts, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return runConnect(ctx, a, userID, code, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&userID, "user", server.DefaultUserID, "User to connect. Can also use INBOX_USER env var.")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code or redirect URL; skips the interactive prompt")

	return cmd
}

func runConnect(ctx context.Context, a *app, userID, input string, in io.Reader, out io.Writer) error {
	state := google.EncodeState(google.State{UserID: userID})

	if input == "" {
		fmt.Fprintf(out, "Open this URL in your browser and approve access:\n\n  %s\n\n", google.AuthURL(a.oauth, state))
		fmt.Fprint(out, "Paste the authorization code or the redirect URL: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		input = line
	}

	code, returned, err := google.ParseCallback(input)
	if err != nil {
		return err
	}
	if returned != "" && google.DecodeState(returned).UserID != userID {
		return fmt.Errorf("state mismatch: the redirect URL was issued for a different user")
	}

	tok, err := google.Exchange(ctx, a.oauth, code)
	if err != nil {
		return err
	}
	if err := saveToken(ctx, a, userID, tok); err != nil {
		return err
	}

	fmt.Fprintf(out, "Connected Gmail for user %q.\n", userID)
	return nil
}

// saveToken persists tok and drops any cached client built from an older one.
func saveToken(ctx context.Context, a *app, userID string, tok *oauth2.Token) error {
	if err := a.store.SaveToken(ctx, userID, google.ToStoreToken(tok)); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	a.serverContext.Evict(userID)
	a.logger.Info("google account connected", logging.UserHash(userID))
	return nil
}

func newDisconnectCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Forget a user's Google token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			if err := applyEnv(cmd, []envBinding{{"user", "INBOX_USER"}}); err != nil {
				return err
			}
			logger := logging.New(os.Stderr, logging.FormatText, opts.debug)
			a, err := newApp(cmd.Context(), opts, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.inbox.Disconnect(cmd.Context(), strings.TrimSpace(userID)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Disconnected Gmail for user %q.\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", server.DefaultUserID, "User to disconnect. Can also use INBOX_USER env var.")
	return cmd
}
