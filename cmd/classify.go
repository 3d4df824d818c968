package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/logging"
	"github.com/teemow/inboxbuckets/internal/server"
)

func newClassifyCmd() *cobra.Command {
	var (
		userID     string
		reclassify bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Fetch and classify the inbox once",
		Long: `Fetch the most recent Gmail messages of a user, classify the ones not seen
before and print how many messages landed in each bucket.

With --reclassify the stored messages are classified again without contacting
Gmail, for example after changing bucket descriptions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveOptions(cmd, opts)
			if err != nil {
				return err
			}
			if err := applyEnv(cmd, []envBinding{{"user", "INBOX_USER"}}); err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := logging.New(cmd.ErrOrStderr(), logging.FormatText, opts.debug)
			a, err := newApp(ctx, opts, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var view *inbox.View
			if reclassify {
				view, err = a.inbox.Reclassify(ctx, userID)
			} else {
				view, err = a.inbox.LoadInbox(ctx, userID)
			}
			if err != nil {
				return fmt.Errorf("failed to classify inbox for %q: %w", userID, err)
			}
			return printSummary(cmd.OutOrStdout(), view, verbose)
		},
	}

	cmd.Flags().StringVar(&userID, "user", server.DefaultUserID, "User whose inbox to classify. Can also use INBOX_USER env var.")
	cmd.Flags().BoolVar(&reclassify, "reclassify", false, "Classify the stored messages again instead of fetching from Gmail")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List the subjects in each bucket")
	return cmd
}

// printSummary writes one line per bucket with its message count and, when
// verbose, the subjects below it.
func printSummary(w io.Writer, view *inbox.View, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	total := 0
	for _, group := range view.Grouped {
		total += len(group.Threads)
		fmt.Fprintf(tw, "%s\t%d\n", group.Bucket.Name, len(group.Threads))
		if !verbose {
			continue
		}
		for _, t := range group.Threads {
			fmt.Fprintf(tw, "  %s\t%.2f\n", t.Subject, t.Confidence)
		}
	}
	fmt.Fprintf(tw, "Total\t%d\n", total)
	return tw.Flush()
}
