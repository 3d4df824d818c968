package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/instrumentation"
	"github.com/teemow/inboxbuckets/internal/logging"
)

const (
	// MaxListResults is the largest page Gmail returns for messages.list.
	MaxListResults = 500

	// HydrateWorkers bounds concurrent messages.get calls while listing.
	HydrateWorkers = 12

	// PreviewLength is the maximum body preview length in characters.
	PreviewLength = 200
)

// Options configures a Client.
type Options struct {
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
}

// Client wraps the Gmail Users service for one account.
type Client struct {
	svc     *gmail.UsersService
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client that authorizes requests with httpClient.
func NewClient(ctx context.Context, httpClient *http.Client, opts Options) (*Client, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{svc: svc.Users, logger: logger, metrics: opts.Metrics}, nil
}

// ListRecentMessages returns up to limit of the newest messages, hydrated
// with subject, sender, date and preview. limit is clamped to 1..500.
func (c *Client) ListRecentMessages(ctx context.Context, limit int) ([]inbox.ThreadSummary, error) {
	var listed []*gmail.Message
	err := c.observe(ctx, instrumentation.GmailOpList, func(ctx context.Context) error {
		res, err := c.svc.Messages.List("me").
			MaxResults(int64(clampLimit(limit))).
			Fields(googleapi.Field("messages(id,snippet,internalDate)")).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		listed = res.Messages
		return nil
	})
	if err != nil {
		return nil, wrapAPIError("failed to fetch Gmail messages", err)
	}

	threads := make([]inbox.ThreadSummary, 0, len(listed))
	for _, m := range listed {
		if m == nil || m.Id == "" {
			continue
		}
		threads = append(threads, inbox.ThreadSummary{
			ID:         m.Id,
			Subject:    inbox.NoSubject,
			Snippet:    cleanSnippet(m.Snippet),
			ReceivedAt: m.InternalDate,
		})
	}
	if len(threads) == 0 {
		return threads, nil
	}
	return c.hydrate(ctx, threads)
}

// ListRecentMessageIDs returns the ids of up to limit of the newest messages.
func (c *Client) ListRecentMessageIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := c.observe(ctx, instrumentation.GmailOpList, func(ctx context.Context) error {
		res, err := c.svc.Messages.List("me").
			MaxResults(int64(clampLimit(limit))).
			Fields(googleapi.Field("messages(id)")).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(res.Messages))
		for _, m := range res.Messages {
			if m != nil && m.Id != "" {
				ids = append(ids, m.Id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapAPIError("failed to fetch Gmail message ids", err)
	}
	return ids, nil
}

// messageDetails is what a full-format fetch adds to a listed message.
type messageDetails struct {
	subject    string
	preview    string
	snippet    string
	sender     string
	receivedAt int64
}

func (c *Client) hydrate(ctx context.Context, threads []inbox.ThreadSummary) ([]inbox.ThreadSummary, error) {
	details := make([]messageDetails, len(threads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(HydrateWorkers)
	for i := range threads {
		g.Go(func() error {
			msg, err := c.getMessage(gctx, threads[i].ID, "full")
			if err != nil {
				// Keep the list-level data for this message.
				c.logger.Debug("failed to hydrate gmail message", logging.Err(err))
				return nil
			}
			details[i] = extractDetails(msg)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]inbox.ThreadSummary, len(threads))
	for i, t := range threads {
		d := details[i]
		if d.subject != "" {
			t.Subject = d.subject
		}
		switch {
		case d.preview != "":
			t.Snippet = d.preview
		case d.snippet != "":
			t.Snippet = d.snippet
		}
		if d.receivedAt != 0 {
			t.ReceivedAt = d.receivedAt
		}
		if d.sender != "" {
			t.Sender = d.sender
		}
		t.Snippet = finalSnippet(t.Snippet, t.Subject)
		out[i] = t
	}
	return out, nil
}

func extractDetails(msg *gmail.Message) messageDetails {
	return messageDetails{
		subject:    headerValue(msg, "Subject"),
		preview:    bodyPreview(msg.Payload),
		snippet:    cleanSnippet(msg.Snippet),
		sender:     headerValue(msg, "From"),
		receivedAt: msg.InternalDate,
	}
}

func (c *Client) getMessage(ctx context.Context, id, format string) (*gmail.Message, error) {
	op := instrumentation.GmailOpGet
	if format == "raw" {
		op = instrumentation.GmailOpGetRaw
	}
	var msg *gmail.Message
	err := c.observe(ctx, op, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get("me", id).Format(format).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// observe runs a Gmail call inside a span and records its metrics.
func (c *Client) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGmailSpan(ctx, op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGmailOperation(ctx, op, status, time.Since(start))
	return err
}

func clampLimit(limit int) int {
	return min(MaxListResults, max(1, limit))
}

// wrapAPIError maps rejected credentials to inbox.ErrAuthExpired.
func wrapAPIError(msg string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%s: status %d: %w", msg, gerr.Code, inbox.ErrAuthExpired)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func headerValue(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}
