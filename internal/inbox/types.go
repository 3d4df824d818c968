package inbox

// Bucket types.
const (
	BucketTypeDefault = "default"
	BucketTypeCustom  = "custom"
)

// Display and sizing constants shared by the API and the Gmail client.
const (
	// ThreadLimit is the number of recent messages fetched, stored and searched.
	ThreadLimit = 200

	NoPreview = "(No preview available)"
	NoSubject = "(No Subject)"

	// FallbackBucketName is preferred for threads without a usable classification.
	FallbackBucketName = "Can Wait"
)

// Bucket is a user-defined category threads are sorted into.
type Bucket struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ThreadSummary is the stored snapshot of a recent message.
// ReceivedAt is milliseconds since the epoch; zero means unknown.
type ThreadSummary struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	Snippet    string `json:"snippet"`
	Sender     string `json:"sender,omitempty"`
	ReceivedAt int64  `json:"receivedAt,omitempty"`
}

// Classification assigns a thread to a bucket.
type Classification struct {
	ThreadID   string  `json:"threadId"`
	BucketID   string  `json:"bucketId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ThreadView is a thread as shown inside a bucket group.
type ThreadView struct {
	ID         string  `json:"id"`
	Subject    string  `json:"subject"`
	Snippet    string  `json:"snippet"`
	ReceivedAt int64   `json:"receivedAt,omitempty"`
	Confidence float64 `json:"confidence"`
}

// BucketGroup lists the threads assigned to one bucket, newest first.
type BucketGroup struct {
	Bucket  Bucket       `json:"bucket"`
	Threads []ThreadView `json:"threads"`
}

// View is the grouped inbox returned by every mutating operation.
type View struct {
	Limit   int           `json:"limit,omitempty"`
	Buckets []Bucket      `json:"buckets"`
	Grouped []BucketGroup `json:"grouped"`
}

// SearchResult is a stored thread matched by a chat search.
type SearchResult struct {
	ID         string `json:"id"`
	Subject    string `json:"subject"`
	Snippet    string `json:"snippet"`
	Sender     string `json:"sender,omitempty"`
	ReceivedAt int64  `json:"receivedAt,omitempty"`
}

// SearchResponse is the answer to a chat search query.
type SearchResponse struct {
	Query           string         `json:"query"`
	TotalCandidates int            `json:"totalCandidates"`
	Results         []SearchResult `json:"results"`
}

// NewMessages reports message ids that appeared since the client last looked.
type NewMessages struct {
	HasNew    bool     `json:"hasNew"`
	NewCount  int      `json:"newCount"`
	LatestIDs []string `json:"latestIds"`
}

// MessageDetail is a single message rendered as sanitized HTML.
type MessageDetail struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Date    string `json:"date,omitempty"`
	HTML    string `json:"html"`
}
