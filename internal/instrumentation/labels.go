package instrumentation

// Label values shared by the metric recorders.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"
	// StatusSkipped marks a provider call that never ran because its breaker
	// was open.
	StatusSkipped = "skipped"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	GmailOpList          = "list"
	GmailOpGet           = "get"
	GmailOpGetRaw        = "get_raw"
	GmailOpGetAttachment = "get_attachment"
)
