package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the inboxbuckets application
var rootCmd = &cobra.Command{
	Use:   "inboxbuckets",
	Short: "Sorts your recent Gmail messages into buckets",
	Long: `inboxbuckets fetches your most recent Gmail messages, sorts them into
buckets (Important, Can Wait, Auto-Archive, Newsletter or your own) with an
LLM, and lets you search them in plain language.

It can run as:
  - An HTTP API for the inbox dashboard (serve)
  - An MCP (Model Context Protocol) server for AI assistants (mcp)
  - A one-shot CLI (classify)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// opts holds the flags shared by every command.
var opts = &globalOptions{}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxbuckets version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	opts.register(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
