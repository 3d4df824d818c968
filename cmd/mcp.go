package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxbuckets/internal/config"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/resources"
	"github.com/teemow/inboxbuckets/internal/server"
	"github.com/teemow/inboxbuckets/internal/tools/common"
	"github.com/teemow/inboxbuckets/internal/tools/inbox_tools"
)

func newMCPCmd() *cobra.Command {
	var (
		userID string
		yolo   bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server over stdio",
		Long: `Start a Model Context Protocol (MCP) server on standard input/output that
gives AI assistants access to one user's bucketed inbox.

Safety Mode:
  By default, the server only offers tools that read the inbox.
  Use --yolo to also offer the tools that create, rename and delete buckets.

The user must have connected Gmail first (inboxbuckets connect --user ...).
Logs go to stderr so they never mix with the protocol on stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			if err := applyEnv(cmd, []envBinding{{"user", "INBOX_USER"}}); err != nil {
				return err
			}
			return runMCP(cmd.Context(), cfg, userID, !yolo)
		},
	}

	cmd.Flags().StringVar(&userID, "user", server.DefaultUserID, "User whose inbox the tools act on. Can also use INBOX_USER env var.")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable the bucket editing tools. Default is read-only mode.")

	return cmd
}

func runMCP(parent context.Context, cfg *config.Config, userID string, readOnly bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(os.Stderr, logging.FormatText, opts.debug)
	slog.SetDefault(logger)

	provider, instrConfig := newInstrumentation(ctx, logger)
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()

	a, err := newApp(ctx, opts, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("error during shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxbuckets", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	inst := common.Instrumentation{
		Metrics: provider.Metrics(),
		Audit:   instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
	}
	if err := registerAll(mcpSrv, a, userID, inst, readOnly); err != nil {
		return err
	}

	if readOnly {
		logger.Info("starting MCP server in READ-ONLY mode (use --yolo to enable bucket editing)")
	}
	return runStdioServer(mcpSrv)
}

// registerAll registers every tool group and resource for userID.
func registerAll(mcpSrv *mcpserver.MCPServer, a *app, userID string, inst common.Instrumentation, readOnly bool) error {
	type registration struct {
		name     string
		register func() error
	}

	registrations := []registration{
		{
			name: "Inbox tools",
			register: func() error {
				return inbox_tools.RegisterInboxTools(mcpSrv, inbox_tools.Config{
					Service:         a.inbox,
					UserID:          userID,
					Instrumentation: inst,
					ReadOnly:        readOnly,
				})
			},
		},
		{
			name: "Inbox resources",
			register: func() error {
				return resources.RegisterInboxResources(mcpSrv, a.inbox, userID)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
