package llm

import (
	"fmt"
	"strings"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

const (
	classifySystemPrompt = "You triage email. Assign every message to exactly one of the user's buckets. " +
		"Answer with JSON only, no prose."

	searchSystemPrompt = "You search a user's recent email. Pick the messages that answer or relate to the query, " +
		"most relevant first. Answer with JSON only, no prose."

	// promptSnippetLength keeps prompts bounded for long previews.
	promptSnippetLength = 300
)

func classifyPrompt(threads []inbox.ThreadSummary, buckets []inbox.Bucket) string {
	var sb strings.Builder
	sb.WriteString("Buckets:\n")
	for _, b := range buckets {
		fmt.Fprintf(&sb, "- id: %s | name: %s", b.ID, b.Name)
		if b.Description != "" {
			fmt.Fprintf(&sb, " | description: %s", b.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nMessages:\n")
	writeThreads(&sb, threads)

	sb.WriteString("\nReturn a JSON array with one object per message: ")
	sb.WriteString(`{"threadId": string, "bucketId": string, "confidence": number from 0 to 1, "reason": short string}.`)
	sb.WriteString(" Use only the ids listed above.")
	return sb.String()
}

func searchPrompt(query string, threads []inbox.ThreadSummary, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nMessages:\n", query)
	writeThreads(&sb, threads)
	fmt.Fprintf(&sb, "\nReturn {\"ids\": [...]} with at most %d message ids, most relevant first. ", limit)
	sb.WriteString(`Return {"ids": []} when nothing matches.`)
	return sb.String()
}

func writeThreads(sb *strings.Builder, threads []inbox.ThreadSummary) {
	for _, t := range threads {
		fmt.Fprintf(sb, "- id: %s", t.ID)
		if t.Sender != "" {
			fmt.Fprintf(sb, " | from: %s", oneLine(t.Sender))
		}
		fmt.Fprintf(sb, " | subject: %s | snippet: %s\n",
			oneLine(t.Subject), oneLine(truncate(t.Snippet, promptSnippetLength)))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
