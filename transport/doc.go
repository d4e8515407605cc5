// Package transport sends HTTP requests to downstream services with bounded
// response bodies and go-errors envelopes for transport failures.
package transport
