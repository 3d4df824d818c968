package gmail

import (
	"encoding/base64"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

// stripPolicy removes every tag; script and style contents are dropped.
var stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// decodeBase64URL decodes Gmail body data. Gmail uses unpadded base64url,
// but padded and standard alphabets are accepted too. Undecodable input
// yields "".
func decodeBase64URL(data string) string {
	compact := strings.Join(strings.Fields(data), "")
	compact = strings.TrimRight(compact, "=")
	if compact == "" {
		return ""
	}
	if b, err := base64.RawURLEncoding.DecodeString(compact); err == nil {
		return string(b)
	}
	if b, err := base64.RawStdEncoding.DecodeString(compact); err == nil {
		return string(b)
	}
	return ""
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripHTML returns the visible text of an HTML fragment.
func stripHTML(s string) string {
	return normalizeWhitespace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// cleanSnippet decodes entities in a Gmail snippet and collapses whitespace.
func cleanSnippet(s string) string {
	return normalizeWhitespace(html.UnescapeString(s))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// finalSnippet picks what is shown when a message has no usable text.
func finalSnippet(snippet, subject string) string {
	if strings.TrimSpace(snippet) != "" {
		return html.UnescapeString(snippet)
	}
	if strings.TrimSpace(subject) != "" {
		return "Subject: " + subject
	}
	return inbox.NoPreview
}

// bodyPreview returns up to PreviewLength characters of message text,
// preferring text/plain parts over HTML.
func bodyPreview(root *gmail.MessagePart) string {
	if root == nil {
		return ""
	}
	var plain, htmlText []string
	walkParts(root, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		decoded := decodeBase64URL(part.Body.Data)
		if decoded == "" {
			return
		}
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain"):
			plain = append(plain, cleanSnippet(decoded))
		case strings.HasPrefix(part.MimeType, "text/html"):
			htmlText = append(htmlText, stripHTML(decoded))
		case len(part.Parts) == 0:
			plain = append(plain, cleanSnippet(decoded))
		}
	})

	if combined := normalizeWhitespace(strings.Join(plain, " ")); combined != "" {
		return truncateRunes(combined, PreviewLength)
	}
	if combined := normalizeWhitespace(strings.Join(htmlText, " ")); combined != "" {
		return truncateRunes(combined, PreviewLength)
	}
	return ""
}

// walkParts calls fn for part and all of its descendants, depth first.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}
