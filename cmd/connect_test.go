package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxbuckets/internal/google"
)

func newTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("interactive code", func(t *testing.T) {
		a := newTestApp(t)
		a.oauth.Endpoint.TokenURL = newTokenEndpoint(t).URL

		var out bytes.Buffer
		err := runConnect(ctx, a, "alice", "", strings.NewReader("good-code\n"), &out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "accounts.google.com")
		assert.Contains(t, out.String(), `Connected Gmail for user "alice"`)

		tok, err := a.store.Token(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)
		assert.Equal(t, "rt-1", tok.RefreshToken)
	})

	t.Run("redirect URL with matching state", func(t *testing.T) {
		a := newTestApp(t)
		a.oauth.Endpoint.TokenURL = newTokenEndpoint(t).URL

		state := google.EncodeState(google.State{UserID: "alice"})
		input := "http://localhost/callback?code=good-code&state=" + state
		require.NoError(t, runConnect(ctx, a, "alice", input, nil, &bytes.Buffer{}))
	})

	t.Run("state for another user", func(t *testing.T) {
		a := newTestApp(t)
		state := google.EncodeState(google.State{UserID: "mallory"})
		input := "http://localhost/callback?code=good-code&state=" + state

		err := runConnect(ctx, a, "alice", input, nil, &bytes.Buffer{})
		assert.ErrorContains(t, err, "state mismatch")
	})

	t.Run("rejected code", func(t *testing.T) {
		a := newTestApp(t)
		a.oauth.Endpoint.TokenURL = newTokenEndpoint(t).URL

		err := runConnect(ctx, a, "alice", "bad-code", nil, &bytes.Buffer{})
		assert.Error(t, err)
		_, err = a.store.Token(ctx, "alice")
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		a := newTestApp(t)
		err := runConnect(ctx, a, "alice", "", strings.NewReader(""), &bytes.Buffer{})
		assert.Error(t, err)
	})
}
