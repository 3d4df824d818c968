package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teemow/inboxbuckets/internal/gmail"
	"github.com/teemow/inboxbuckets/internal/google"
	"github.com/teemow/inboxbuckets/internal/inbox"
)

// ErrShuttingDown is returned for mailbox lookups after Shutdown.
var ErrShuttingDown = errors.New("server is shutting down")

// ServerContext holds the long-lived state shared by API handlers: one
// Gmail client per user, created lazily from the stored Google token.
type ServerContext struct {
	ctx          context.Context
	cancel       context.CancelFunc
	tokens       google.TokenProvider
	gmailOpts    gmail.Options
	gmailClients map[string]*gmail.Client // Maps user id to Gmail client
	mu           sync.RWMutex
	shutdown     bool
}

// NewServerContext creates a new server context. Clients created through it
// stay valid until Shutdown.
func NewServerContext(ctx context.Context, tokens google.TokenProvider, opts gmail.Options) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		tokens:       tokens,
		gmailOpts:    opts,
		gmailClients: make(map[string]*gmail.Client),
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// GmailClient returns the cached Gmail client for userID, creating it on
// first use. It returns inbox.ErrNotConnected when the user has no token.
func (sc *ServerContext) GmailClient(ctx context.Context, userID string) (*gmail.Client, error) {
	sc.mu.RLock()
	client, ok := sc.gmailClients[userID]
	shutdown := sc.shutdown
	sc.mu.RUnlock()
	if shutdown {
		return nil, ErrShuttingDown
	}
	if ok {
		return client, nil
	}

	ts, err := sc.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	client, err = gmail.NewClient(sc.ctx, google.NewHTTPClient(sc.ctx, ts), sc.gmailOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil, ErrShuttingDown
	}
	// Another request may have won the race; keep the first client.
	if existing, ok := sc.gmailClients[userID]; ok {
		return existing, nil
	}
	sc.gmailClients[userID] = client
	return client, nil
}

// Mailbox implements inbox.MailboxProvider. A mailbox whose token is rejected
// by Gmail is dropped from the cache so the next call reloads the token.
func (sc *ServerContext) Mailbox(ctx context.Context, userID string) (inbox.Mailbox, error) {
	client, err := sc.GmailClient(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &evictingMailbox{Mailbox: client, sc: sc, userID: userID}, nil
}

// Disconnect implements inbox.MailboxProvider.
func (sc *ServerContext) Disconnect(ctx context.Context, userID string) error {
	sc.Evict(userID)
	if err := sc.tokens.Forget(ctx, userID); err != nil {
		return fmt.Errorf("failed to forget token: %w", err)
	}
	return nil
}

// Evict drops the cached Gmail client for userID.
func (sc *ServerContext) Evict(userID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.gmailClients, userID)
}

// CachedClients returns the number of cached Gmail clients.
func (sc *ServerContext) CachedClients() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.gmailClients)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.gmailClients = make(map[string]*gmail.Client)
	sc.cancel()
	return nil
}

type evictingMailbox struct {
	inbox.Mailbox
	sc     *ServerContext
	userID string
}

func (m *evictingMailbox) check(err error) error {
	if errors.Is(err, inbox.ErrAuthExpired) {
		m.sc.Evict(m.userID)
	}
	return err
}

func (m *evictingMailbox) ListRecentMessages(ctx context.Context, limit int) ([]inbox.ThreadSummary, error) {
	threads, err := m.Mailbox.ListRecentMessages(ctx, limit)
	return threads, m.check(err)
}

func (m *evictingMailbox) ListRecentMessageIDs(ctx context.Context, limit int) ([]string, error) {
	ids, err := m.Mailbox.ListRecentMessageIDs(ctx, limit)
	return ids, m.check(err)
}

func (m *evictingMailbox) MessageDetail(ctx context.Context, id string) (*inbox.MessageDetail, error) {
	detail, err := m.Mailbox.MessageDetail(ctx, id)
	return detail, m.check(err)
}
