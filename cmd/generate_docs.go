package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/resources"
	"github.com/teemow/inboxbuckets/internal/server"
	"github.com/teemow/inboxbuckets/internal/tools/inbox_tools"
)

const (
	categoryRead    = "Read Tools"
	categoryEditing = "Bucket Editing Tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a markdown reference of the MCP tools and resources offered by
'inboxbuckets mcp', built from the registered tool definitions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				return writeToolsMarkdown(cmd.OutOrStdout())
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := writeToolsMarkdown(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func writeToolsMarkdown(w io.Writer) error {
	markdown, err := toolsMarkdown()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, markdown)
	return err
}

// registeredTools registers the inbox tools against an unwired service
// (handlers are never called) and returns their definitions by name.
func registeredTools(readOnly bool) (map[string]mcp.Tool, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxbuckets", version, mcpserver.WithToolCapabilities(true))
	err := inbox_tools.RegisterInboxTools(mcpSrv, inbox_tools.Config{
		Service:  inbox.NewService(inbox.Dependencies{}),
		UserID:   server.DefaultUserID,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register inbox tools: %w", err)
	}
	tools := make(map[string]mcp.Tool)
	for name, st := range mcpSrv.ListTools() {
		tools[name] = st.Tool
	}
	return tools, nil
}

// toolsMarkdown renders every tool, split into the read-only set and the
// tools that only --yolo enables.
func toolsMarkdown() (string, error) {
	all, err := registeredTools(false)
	if err != nil {
		return "", err
	}
	readOnly, err := registeredTools(true)
	if err != nil {
		return "", err
	}

	groups := map[string][]mcp.Tool{}
	for name, tool := range all {
		category := categoryEditing
		if _, ok := readOnly[name]; ok {
			category = categoryRead
		}
		groups[category] = append(groups[category], tool)
	}

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools and resources offered by `inboxbuckets mcp`. Generated from the tool definitions.\n\n")
	sb.WriteString("Every tool acts on the inbox of the user the server was started for (`--user`, default `" + server.DefaultUserID + "`).\n\n")

	for _, category := range []string{categoryRead, categoryEditing} {
		tools := groups[category]
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", category)
		if category == categoryEditing {
			sb.WriteString("Only registered when the server runs with `--yolo`.\n\n")
		}
		for _, tool := range tools {
			writeToolMarkdown(&sb, tool)
		}
	}

	sb.WriteString("## Resources\n\n")
	fmt.Fprintf(&sb, "- `%s`: the buckets messages are sorted into (JSON)\n", resources.BucketsURI)
	fmt.Fprintf(&sb, "- `%s`: the stored inbox grouped by bucket (JSON)\n", resources.ViewURI)

	return sb.String(), nil
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}
	if len(tool.InputSchema.Properties) == 0 {
		return
	}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("**Arguments:**\n")
	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]interface{})
		if !ok {
			continue
		}
		required := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "required"
		}
		propType, _ := prop["type"].(string)
		if propType == "" {
			propType = "any"
		}
		desc, _ := prop["description"].(string)
		fmt.Fprintf(sb, "- `%s` (%s, %s): %s\n", name, required, propType, desc)
	}
	sb.WriteString("\n")
}
