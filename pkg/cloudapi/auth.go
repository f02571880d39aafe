package cloudapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/cuemby/igniteclient/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// loginTimeLayout is the login-compatible layout the Date response header
// is reformatted into.
const loginTimeLayout = "2006-01-02T15:04:05"

// Per-request retry pacing for the token fetch: base delay doubled per
// consecutive server/timeout failure, capped, randomized by the
// per-device seed inside ExponentialBackoff.
const (
	authRetryFailureMs = 1_000
	authRetryMaxMs     = 16_000
	authMaxAttempts    = 3
)

// AuthRequest is the input to the auth-token fetch: the device id
// (login) and passcode issued at activation, plus an optional product
// type gated by useDeviceType just like the activation payload.
type AuthRequest struct {
	Login         string
	Passcode      string
	ProductType   string
	UseDeviceType bool
}

// AuthResult is what FetchToken returns: the parsed AuthToken (raw token
// string, issued-at, lifetime) and the login-compatible time string
// derived from the response's Date header.
type AuthResult struct {
	Token     types.AuthToken
	LoginTime string
}

type tokenResponse struct {
	Token string `json:"token"`
}

// AuthClient fetches a cloud auth token using HTTP Basic-style
// authentication built from base64(login:passcode).
type AuthClient struct {
	Pool      *httpclient.Pool
	URL       string
	Timeout   time.Duration
	MarginPct float64

	// MaxAttempts bounds how many times one FetchToken call executes the
	// request when the cloud answers with a retryable server/timeout
	// failure; between attempts the delay follows ExponentialBackoff.
	MaxAttempts int

	rng     httpclient.RNG
	seedKey string
	sleep   func(time.Duration)
}

// NewAuthClient builds a client posting to url. rng and seedKey (the
// device serial) jitter the retry delay so a fleet that lost its token
// endpoint doesn't come back in lockstep.
func NewAuthClient(pool *httpclient.Pool, url string, rng httpclient.RNG, seedKey string) *AuthClient {
	return &AuthClient{
		Pool:        pool,
		URL:         url,
		Timeout:     30 * time.Second,
		MarginPct:   10,
		MaxAttempts: authMaxAttempts,
		rng:         rng,
		seedKey:     seedKey,
		sleep:       time.Sleep,
	}
}

// FetchToken exchanges (login, passcode) for a cloud auth token. The
// returned token's TTL is derived from the encoded token's own iat/exp
// claims, not from any wrapper field the response envelope carries.
func (c *AuthClient) FetchToken(req AuthRequest) (*AuthResult, *ierr.Error) {
	session, ok := c.Pool.Acquire()
	if !ok {
		return nil, ierr.New(ierr.Other, "http session pool exhausted")
	}
	defer c.Pool.Release(session)

	hreq := httpclient.NewHttpRequest(session)
	hreq.URL = c.URL
	hreq.Timeout = c.Timeout
	basic := base64.StdEncoding.EncodeToString([]byte(req.Login + ":" + req.Passcode))
	hreq.Headers["Authorization"] = "Basic " + basic
	if req.UseDeviceType {
		hreq.Headers["X-Product-Type"] = req.ProductType
	}

	// Server/timeout failures are retried in place under exponential
	// backoff; everything else is surfaced to the caller after a single
	// attempt.
	retry := httpclient.NewExponentialBackoff(0, authRetryFailureMs, authRetryMaxMs, c.rng, c.seedKey)
	var resp httpclient.Response
	for attempt := 0; ; attempt++ {
		resp = hreq.ExecuteGet()
		if resp.Code != ierr.Server && resp.Code != ierr.Timeout {
			break
		}
		if attempt >= c.MaxAttempts-1 {
			break
		}
		c.sleep(time.Duration(retry.NextRetryTime(resp.Code)) * time.Millisecond)
	}

	if resp.Code == ierr.Network || resp.Code == ierr.Timeout {
		return nil, ierr.New(resp.Code, "auth token request failed")
	}
	if resp.Code == ierr.Access {
		return nil, ierr.New(ierr.Access, "auth token request rejected (invalid credentials)")
	}
	if resp.Code != ierr.Ok {
		return nil, &ierr.Error{Code: resp.Code, Message: fmt.Sprintf("auth http %d", resp.StatusCode)}
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Token == "" {
		return nil, ierr.Wrap(ierr.ResponseFormat, "parse auth token response", err)
	}

	iat, exp, err := decodeTokenClaims(body.Token)
	if err != nil {
		return nil, ierr.Wrap(ierr.ResponseData, "decode auth token claims", err)
	}

	loginTime := parseLoginTime(resp.Header.Get("Date"))
	return &AuthResult{
		Token: types.AuthToken{
			Token:     body.Token,
			IssuedAt:  iat,
			Lifetime:  exp - iat,
			MarginPct: c.MarginPct,
		},
		LoginTime: loginTime,
	}, nil
}

// decodeTokenClaims reads iat/exp from the token's payload segment without
// verifying its signature — the ignite client is a relying party for a
// token it just received over an already-authenticated channel, not a
// verifier of third-party tokens.
func decodeTokenClaims(token string) (iat, exp int64, err error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err = parser.ParseUnverified(token, claims); err != nil {
		return 0, 0, err
	}
	iat = claimInt(claims, "iat")
	exp = claimInt(claims, "exp")
	return iat, exp, nil
}

func claimInt(claims jwt.MapClaims, key string) int64 {
	v, ok := claims[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// parseLoginTime reformats the HTTP Date response header (RFC 1123) into
// the login-compatible time string, falling back to
// the current time if the header is missing or malformed.
func parseLoginTime(dateHeader string) string {
	if dateHeader == "" {
		return time.Now().UTC().Format(loginTimeLayout)
	}
	t, err := http.ParseTime(dateHeader)
	if err != nil {
		return time.Now().UTC().Format(loginTimeLayout)
	}
	return t.UTC().Format(loginTimeLayout)
}
