package inbox

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(mb *fakeMailbox, classifier ThreadClassifier, searcher ThreadSearcher) (*Service, *memStore, *fakeMailboxes) {
	store := newMemStore()
	provider := &fakeMailboxes{mailbox: mb}
	svc := NewService(Dependencies{
		Store:      store,
		Mailboxes:  provider,
		Classifier: classifier,
		Searcher:   searcher,
	})
	return svc, store, provider
}

func TestService_LoadInbox(t *testing.T) {
	ctx := context.Background()
	mb := &fakeMailbox{threads: []ThreadSummary{
		{ID: "m1", Subject: "Weekly digest", ReceivedAt: 100},
		{ID: "m2", Subject: "URGENT review", ReceivedAt: 200},
		{ID: "m3", Subject: "hello", ReceivedAt: 300},
	}}
	svc, store, _ := newTestService(mb, nil, nil)

	view, err := svc.LoadInbox(ctx, "u")
	require.NoError(t, err)

	assert.Equal(t, ThreadLimit, view.Limit)
	require.Len(t, view.Buckets, 4)
	assert.Equal(t, "Important", view.Buckets[0].Name)

	counts := map[string]int{}
	for _, g := range view.Grouped {
		counts[g.Bucket.Name] = len(g.Threads)
	}
	assert.Equal(t, map[string]int{"Important": 1, "Can Wait": 1, "Auto-Archive": 0, "Newsletter": 1}, counts)

	assert.Len(t, store.threads["u"], 3)
	assert.Len(t, store.classifications["u"], 3)
	assert.Len(t, store.cache["u"], 3)
}

func TestService_LoadInbox_KeepsNewest(t *testing.T) {
	var threads []ThreadSummary
	for i := 0; i < 5; i++ {
		threads = append(threads, ThreadSummary{ID: fmt.Sprintf("m%d", i), ReceivedAt: int64(i)})
	}
	store := newMemStore()
	svc := NewService(Dependencies{
		Store:       store,
		Mailboxes:   &fakeMailboxes{mailbox: &fakeMailbox{threads: threads}},
		ThreadLimit: 3,
	})

	view, err := svc.LoadInbox(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Limit)
	assert.Equal(t, []string{"m2", "m1", "m0"}, ids(store.threads["u"]))
	assert.Len(t, store.classifications["u"], 3)
}

func TestService_LoadInbox_AuthErrors(t *testing.T) {
	svc, _, _ := newTestService(nil, nil, nil)
	_, err := svc.LoadInbox(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, NeedsGoogleAuth(err))

	svc, _, _ = newTestService(&fakeMailbox{err: fmt.Errorf("list: %w", ErrAuthExpired)}, nil, nil)
	_, err = svc.LoadInbox(context.Background(), "u")
	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.True(t, NeedsGoogleAuth(err))
	assert.False(t, NeedsGoogleAuth(errors.New("other")))
}

func TestService_BucketMutationsReclassify(t *testing.T) {
	ctx := context.Background()
	classifier := &recordingClassifier{}
	svc, store, _ := newTestService(&fakeMailbox{threads: []ThreadSummary{{ID: "m1"}, {ID: "m2"}}}, classifier, nil)

	_, err := svc.LoadInbox(ctx, "u")
	require.NoError(t, err)
	require.Len(t, classifier.calls, 1)

	view, err := svc.AddBucket(ctx, "u", "  Travel  ", " Trips ")
	require.NoError(t, err)
	require.Len(t, view.Buckets, 5)
	travel := view.Buckets[4]
	assert.Equal(t, "Travel", travel.Name)
	assert.Equal(t, "Trips", travel.Description)
	assert.Equal(t, BucketTypeCustom, travel.Type)
	assert.Len(t, classifier.calls, 2, "adding a bucket reclassifies stored threads")

	classifier.bucketID = travel.ID
	view, err = svc.UpdateBucket(ctx, "u", travel.ID, "Trips", "")
	require.NoError(t, err)
	assert.Equal(t, "Trips", view.Buckets[4].Name)
	assert.Len(t, view.Grouped[4].Threads, 2)

	_, err = svc.UpdateBucket(ctx, "u", "missing", "Unknown", "")
	assert.ErrorIs(t, err, ErrBucketNotFound)

	classifier.bucketID = ""
	view, err = svc.DeleteBucket(ctx, "u", travel.ID)
	require.NoError(t, err)
	assert.Len(t, view.Buckets, 4)
	assert.Len(t, store.classifications["u"], 2)
	for _, c := range store.classifications["u"] {
		assert.NotEqual(t, travel.ID, c.BucketID)
	}
}

func TestService_BucketNamesAreTrimmedBeforeValidation(t *testing.T) {
	ctx := context.Background()
	classifier := &recordingClassifier{}
	svc, store, _ := newTestService(&fakeMailbox{}, classifier, nil)

	_, err := svc.AddBucket(ctx, "u", "    ", "")
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = svc.AddBucket(ctx, "u", " a ", "")
	assert.ErrorIs(t, err, ErrInvalidBucket)
	assert.Empty(t, store.buckets["u"], "rejected names never reach the store")

	view, err := svc.Inbox(ctx, "u")
	require.NoError(t, err)
	require.Len(t, view.Buckets, 4)

	_, err = svc.UpdateBucket(ctx, "u", view.Buckets[0].ID, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidBucket)
	buckets, err := svc.Buckets(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "Important", buckets[0].Name)
	assert.Empty(t, classifier.calls)
}

func TestService_DeleteLastBucket(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(&fakeMailbox{}, nil, nil)
	store.buckets["u"] = []Bucket{{ID: "only", Name: "Only"}}

	_, err := svc.DeleteBucket(ctx, "u", "only")
	assert.ErrorIs(t, err, ErrLastBucket)
}

func TestService_Reclassify_Empty(t *testing.T) {
	svc, _, _ := newTestService(nil, nil, nil)
	view, err := svc.Reclassify(context.Background(), "u")
	require.NoError(t, err)
	assert.Len(t, view.Grouped, 4)
	for _, g := range view.Grouped {
		assert.Empty(t, g.Threads)
	}
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(nil, nil, fakeSearcher{ids: []string{"b", "ghost", "a", "b"}})
	store.threads["u"] = []ThreadSummary{
		{ID: "a", Subject: "A", Snippet: "sa", Sender: "x@example.com", ReceivedAt: 1},
		{ID: "b", Subject: "B", Snippet: "sb", ReceivedAt: 2},
	}

	resp, err := svc.Search(ctx, "u", "anything", 15)
	require.NoError(t, err)
	assert.Equal(t, "anything", resp.Query)
	assert.Equal(t, 2, resp.TotalCandidates)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "b", resp.Results[0].ID)
	assert.Equal(t, SearchResult{ID: "a", Subject: "A", Snippet: "sa", Sender: "x@example.com", ReceivedAt: 1}, resp.Results[1])

	resp, err = svc.Search(ctx, "u", "anything", 1)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestService_Search_FallsBackToKeywords(t *testing.T) {
	svc, store, _ := newTestService(nil, nil, fakeSearcher{err: errors.New("llm down")})
	store.threads["u"] = []ThreadSummary{{ID: "a", Subject: "Invoice March"}, {ID: "b", Subject: "Party"}}

	resp, err := svc.Search(context.Background(), "u", "invoice", 15)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a", resp.Results[0].ID)
}

func TestService_Search_NoThreads(t *testing.T) {
	svc, _, _ := newTestService(nil, nil, nil)
	resp, err := svc.Search(context.Background(), "u", "invoice", 15)
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCandidates)
	assert.NotNil(t, resp.Results)
}

func TestService_CheckNew(t *testing.T) {
	svc, _, _ := newTestService(&fakeMailbox{ids: []string{"n1", "k1", "n2"}}, nil, nil)

	got, err := svc.CheckNew(context.Background(), "u", []string{"k1", "old"})
	require.NoError(t, err)
	assert.Equal(t, &NewMessages{HasNew: true, NewCount: 2, LatestIDs: []string{"n1", "k1", "n2"}}, got)

	svc, _, _ = newTestService(&fakeMailbox{}, nil, nil)
	got, err = svc.CheckNew(context.Background(), "u", nil)
	require.NoError(t, err)
	assert.False(t, got.HasNew)
	assert.NotNil(t, got.LatestIDs)
}

func TestService_MessageDetailAndDisconnect(t *testing.T) {
	ctx := context.Background()
	detail := &MessageDetail{ID: "m1", Subject: "Hi", HTML: "<p>x</p>"}
	svc, _, provider := newTestService(&fakeMailbox{detail: detail}, nil, nil)

	got, err := svc.MessageDetail(ctx, "u", "m1")
	require.NoError(t, err)
	assert.Equal(t, detail, got)

	require.NoError(t, svc.Disconnect(ctx, "u"))
	assert.Equal(t, []string{"u"}, provider.disconnected)

	_, err = svc.MessageDetail(ctx, "u", "m1")
	assert.ErrorIs(t, err, ErrNotConnected)
}
