package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// fakeProvider answers with respond, or fails with err.
type fakeProvider struct {
	name    string
	respond func(system, prompt string) (string, error)

	calls    atomic.Int32
	mu       sync.Mutex
	prompts  []string
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.respond(system, prompt)
}

func testBuckets() []inbox.Bucket {
	return []inbox.Bucket{
		{ID: "imp", Name: "Important", Type: inbox.BucketTypeDefault},
		{ID: "wait", Name: "Can Wait", Type: inbox.BucketTypeDefault},
		{ID: "arch", Name: "Auto-Archive", Type: inbox.BucketTypeDefault},
		{ID: "news", Name: "Newsletter", Type: inbox.BucketTypeDefault},
	}
}
