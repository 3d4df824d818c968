package gmail

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

const (
	// MaxAttachmentSize caps body parts fetched through the attachments API (25MB).
	MaxAttachmentSize = 25 * 1024 * 1024

	noContent = "(No content available)"
)

// renderPolicy keeps ordinary email markup and drops scripts, embedded
// objects, event handler attributes and javascript: URLs.
var renderPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("align", "valign", "bgcolor", "width", "height", "border", "cellpadding", "cellspacing").
		OnElements("table", "tbody", "thead", "tr", "td", "th", "img", "div", "p")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowElements("center", "font")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// SanitizeHTML removes active content from message HTML.
func SanitizeHTML(s string) string {
	return strings.TrimSpace(renderPolicy.Sanitize(s))
}

// MessageDetail fetches one message and renders its body as HTML.
func (c *Client) MessageDetail(ctx context.Context, id string) (*inbox.MessageDetail, error) {
	msg, err := c.getMessage(ctx, id, "full")
	if err != nil {
		return nil, wrapAPIError("failed to fetch Gmail message detail", err)
	}

	var htmlParts, plainParts []string
	c.collectBodyContent(ctx, id, msg.Payload, &htmlParts, &plainParts)

	fullHTML := strings.TrimSpace(strings.Join(htmlParts, "\n"))
	fullText := normalizeWhitespace(strings.Join(plainParts, "\n"))

	if fullHTML == "" && fullText == "" {
		raw, err := c.rawBody(ctx, id)
		if err != nil {
			c.logger.Debug("raw message fallback failed", logging.Err(err))
		}
		fullHTML = raw.html
		if raw.text != "" {
			fullText = normalizeWhitespace(raw.text)
		}
		if fullHTML == "" && fullText == "" {
			fullText = raw.raw
		}
	}

	body := ""
	if fullHTML != "" {
		body = SanitizeHTML(fullHTML)
	}
	if body == "" {
		text := fullText
		if text == "" {
			text = cleanSnippet(msg.Snippet)
		}
		if text == "" {
			text = noContent
		}
		body = "<pre>" + html.EscapeString(text) + "</pre>"
	}

	return &inbox.MessageDetail{
		ID:      id,
		Subject: headerValue(msg, "Subject"),
		From:    headerValue(msg, "From"),
		To:      headerValue(msg, "To"),
		Date:    headerValue(msg, "Date"),
		HTML:    body,
	}, nil
}

// collectBodyContent gathers decoded html and plain parts. Bodies stored
// out of line are fetched through the attachments API.
func (c *Client) collectBodyContent(ctx context.Context, messageID string, root *gmail.MessagePart, htmlParts, plainParts *[]string) {
	walkParts(root, func(part *gmail.MessagePart) {
		var decoded string
		if part.Body != nil {
			decoded = decodeBase64URL(part.Body.Data)
			if decoded == "" && part.Body.AttachmentId != "" && isTextPart(part) {
				decoded = c.attachmentText(ctx, messageID, part.Body.AttachmentId)
			}
		}
		if decoded == "" {
			return
		}
		switch {
		case strings.HasPrefix(part.MimeType, "text/html"):
			*htmlParts = append(*htmlParts, decoded)
		case strings.HasPrefix(part.MimeType, "text/plain"):
			*plainParts = append(*plainParts, decoded)
		case len(part.Parts) == 0 && part.Filename == "":
			*plainParts = append(*plainParts, decoded)
		}
	})
}

func isTextPart(part *gmail.MessagePart) bool {
	return part.Filename == "" || strings.HasPrefix(part.MimeType, "text/")
}

// attachmentText returns the decoded attachment body, or "" when it cannot
// be fetched.
func (c *Client) attachmentText(ctx context.Context, messageID, attachmentID string) string {
	var data string
	err := c.observe(ctx, instrumentation.GmailOpGetAttachment, func(ctx context.Context) error {
		att, err := c.svc.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
		if err != nil {
			return err
		}
		if att.Size > MaxAttachmentSize {
			return fmt.Errorf("attachment size %d exceeds maximum size %d", att.Size, MaxAttachmentSize)
		}
		data = att.Data
		return nil
	})
	if err != nil {
		c.logger.Debug("failed to fetch body attachment", logging.Err(err))
		return ""
	}
	return decodeBase64URL(data)
}

type rawContent struct {
	html string
	text string
	raw  string
}

// rawBody fetches the RFC 5322 message and extracts its text parts,
// decoding transfer encodings and charsets.
func (c *Client) rawBody(ctx context.Context, id string) (rawContent, error) {
	msg, err := c.getMessage(ctx, id, "raw")
	if err != nil {
		return rawContent{}, err
	}
	raw := decodeBase64URL(msg.Raw)
	if raw == "" {
		return rawContent{}, nil
	}
	out := rawContent{raw: strings.TrimSpace(raw)}
	out.html, out.text = parseMIME([]byte(raw))
	return out, nil
}

// parseMIME returns the first html and plain text bodies of a raw message.
func parseMIME(raw []byte) (htmlBody, textBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return "", ""
	}
	defer mr.Close()

	for {
		p, err := mr.NextPart()
		if err != nil {
			// io.EOF or a malformed part; keep what was read so far.
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil {
			ct = "text/plain"
		}
		b, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		body := strings.TrimSpace(string(b))
		switch {
		case ct == "text/html" && htmlBody == "":
			htmlBody = body
		case ct == "text/plain" && textBody == "":
			textBody = body
		}
	}
	return htmlBody, textBody
}
