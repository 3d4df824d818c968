// Package inbox holds the triage domain: buckets, thread summaries,
// classifications and the service that ties Gmail, the classification cache
// and the LLM classifier together.
//
// The flow for a refresh is:
//
//	buckets  := EnsureDefaultBuckets(user)
//	threads  := Mailbox.ListRecentMessages(200)
//	results  := Pipeline.ClassifyUnseen(user, threads, buckets)
//	ReplaceThreads(user, KeepNewest(threads), results)
//	view     := BuildView(buckets, threads, results)
//
// Only threads missing from the classification cache reach the classifier.
// Whatever the classifier cannot place lands in the fallback bucket
// ("Can Wait", or the first bucket) so every thread is always shown.
package inbox
