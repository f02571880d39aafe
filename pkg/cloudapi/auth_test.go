package cloudapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type minRNG struct{}

func (minRNG) Range(seedKey string, min, max int) int { return min }

func newTestAuthClient(url string) *AuthClient {
	c := NewAuthClient(httpclient.NewPool(httpclient.TLSConfig{}), url, minRNG{}, "serial-1")
	c.sleep = func(time.Duration) {}
	return c
}

func signedTestToken(t *testing.T, iat, exp int64) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": iat, "exp": exp})
	signed, err := tok.SignedString([]byte("unused-test-secret"))
	require.NoError(t, err)
	return signed
}

func TestAuthClient_FetchTokenDerivesTTLFromClaims(t *testing.T) {
	iat := time.Now().Unix()
	exp := iat + 3600
	token := signedTestToken(t, iat, exp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("device-1:pass-1"))
		assert.Equal(t, want, r.Header.Get("Authorization"))
		w.Header().Set("Date", "Mon, 02 Jan 2006 15:04:05 GMT")
		fmt.Fprintf(w, `{"token":%q}`, token)
	}))
	defer srv.Close()

	client := newTestAuthClient(srv.URL)
	result, aerr := client.FetchToken(AuthRequest{Login: "device-1", Passcode: "pass-1"})
	require.Nil(t, aerr)
	assert.Equal(t, token, result.Token.Token)
	assert.Equal(t, int64(3600), result.Token.Lifetime)
	assert.Equal(t, "2006-01-02T15:04:05", result.LoginTime)
}

func TestAuthClient_UnauthorizedIsAccessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestAuthClient(srv.URL)
	_, aerr := client.FetchToken(AuthRequest{Login: "device-1", Passcode: "wrong"})
	require.NotNil(t, aerr)
	assert.Equal(t, ierr.Access, aerr.Code)
}

func TestAuthClient_RetriesServerErrorsWithBackoff(t *testing.T) {
	iat := time.Now().Unix()
	token := signedTestToken(t, iat, iat+3600)

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"token":%q}`, token)
	}))
	defer srv.Close()

	client := newTestAuthClient(srv.URL)
	var slept int
	client.sleep = func(time.Duration) { slept++ }

	result, aerr := client.FetchToken(AuthRequest{Login: "device-1", Passcode: "pass-1"})
	require.Nil(t, aerr)
	assert.Equal(t, token, result.Token.Token)
	assert.Equal(t, 3, hits)
	assert.Equal(t, 2, slept)
}

func TestAuthClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestAuthClient(srv.URL)
	_, aerr := client.FetchToken(AuthRequest{Login: "device-1", Passcode: "pass-1"})
	require.NotNil(t, aerr)
	assert.Equal(t, ierr.Server, aerr.Code)
	assert.Equal(t, authMaxAttempts, hits)
}
