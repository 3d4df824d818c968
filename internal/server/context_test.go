package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxbuckets/internal/gmail"
	"github.com/teemow/inboxbuckets/internal/inbox"
)

type fakeTokens struct {
	mu        sync.Mutex
	connected map[string]bool
	lookups   int
	forgotten []string
}

func (f *fakeTokens) TokenSource(_ context.Context, userID string) (oauth2.TokenSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if !f.connected[userID] {
		return nil, inbox.ErrNotConnected
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-" + userID}), nil
}

func (f *fakeTokens) Forget(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, userID)
	delete(f.connected, userID)
	return nil
}

func newGmailStub(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServerContext_Mailbox(t *testing.T) {
	srv := newGmailStub(t, http.StatusOK)
	tokens := &fakeTokens{connected: map[string]bool{"alice": true}}
	sc := NewServerContext(context.Background(), tokens, gmail.Options{Endpoint: srv.URL + "/"})
	t.Cleanup(func() { _ = sc.Shutdown() })

	mb, err := sc.Mailbox(context.Background(), "alice")
	require.NoError(t, err)
	ids, err := mb.ListRecentMessageIDs(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)

	_, err = sc.Mailbox(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.lookups, "client is cached per user")
	assert.Equal(t, 1, sc.CachedClients())
}

func TestServerContext_NotConnected(t *testing.T) {
	sc := NewServerContext(context.Background(), &fakeTokens{}, gmail.Options{})
	t.Cleanup(func() { _ = sc.Shutdown() })

	mb, err := sc.Mailbox(context.Background(), "bob")
	assert.ErrorIs(t, err, inbox.ErrNotConnected)
	assert.Nil(t, mb)
	assert.Zero(t, sc.CachedClients())
}

func TestServerContext_EvictsOnExpiredAuth(t *testing.T) {
	srv := newGmailStub(t, http.StatusUnauthorized)
	tokens := &fakeTokens{connected: map[string]bool{"alice": true}}
	sc := NewServerContext(context.Background(), tokens, gmail.Options{Endpoint: srv.URL + "/"})
	t.Cleanup(func() { _ = sc.Shutdown() })

	mb, err := sc.Mailbox(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 1, sc.CachedClients())

	_, err = mb.ListRecentMessageIDs(context.Background(), 10)
	assert.ErrorIs(t, err, inbox.ErrAuthExpired)
	assert.Zero(t, sc.CachedClients())
}

func TestServerContext_Disconnect(t *testing.T) {
	srv := newGmailStub(t, http.StatusOK)
	tokens := &fakeTokens{connected: map[string]bool{"alice": true}}
	sc := NewServerContext(context.Background(), tokens, gmail.Options{Endpoint: srv.URL + "/"})
	t.Cleanup(func() { _ = sc.Shutdown() })

	_, err := sc.Mailbox(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, sc.Disconnect(context.Background(), "alice"))
	assert.Equal(t, []string{"alice"}, tokens.forgotten)
	assert.Zero(t, sc.CachedClients())

	_, err = sc.Mailbox(context.Background(), "alice")
	assert.ErrorIs(t, err, inbox.ErrNotConnected)
}

func TestServerContext_Shutdown(t *testing.T) {
	tokens := &fakeTokens{connected: map[string]bool{"alice": true}}
	sc := NewServerContext(context.Background(), tokens, gmail.Options{})

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())

	_, err := sc.Mailbox(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrShuttingDown)
}
