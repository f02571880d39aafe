// Package cloudapi implements the client's cloud interactions: the
// one-time activation exchange, the auth-token fetch, and the configured
// health-check endpoint. Each client builds its
// request with pkg/httpclient's session pool and translates the response
// into the shared pkg/ierr taxonomy so pkg/backoff can decide whether an
// outcome counts against the retry ladder.
package cloudapi
