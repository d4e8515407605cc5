// Package providers holds the built-in provider catalog and the OAuth2
// exchanger that speaks the authorization code and refresh grants for every
// catalog entry.
package providers
