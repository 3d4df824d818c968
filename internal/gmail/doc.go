// Package gmail reads a user's recent Gmail messages.
//
// The Client lists the newest messages, hydrates each one with its subject,
// sender, date and a short body preview, and renders single messages as
// sanitized HTML for display.
//
// Listing uses the lightweight fields mask messages(id,snippet,internalDate)
// and then fetches every message in full format through a bounded pool of
// workers. A message that cannot be fetched keeps the data from the list call.
//
// Rendering prefers the HTML parts of a message. When the structured payload
// carries no text at all, the raw RFC 5322 message is parsed instead.
//
// Gmail rejecting the credentials (HTTP 401 or 403) is reported as
// inbox.ErrAuthExpired so callers can ask the user to reconnect.
package gmail
