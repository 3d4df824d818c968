// Package google provides the OAuth2 configuration used to connect a Gmail
// account, the consent state round-tripped through Google, and token sources
// backed by the application store.
//
// Tokens are persisted per user. A StoreTokenProvider builds an
// oauth2.TokenSource that refreshes expired access tokens and writes the
// refreshed token back, so the next process start does not need to refresh
// again.
package google
