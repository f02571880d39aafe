package cloudapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/stretchr/testify/assert"
)

func TestHealthClient_HealthyWithinStatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHealthClient(httpclient.NewPool(httpclient.TLSConfig{}), srv.URL)
	result := client.Check()
	assert.True(t, result.Healthy)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)
}

func TestHealthClient_UnhealthyOutsideStatusRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHealthClient(httpclient.NewPool(httpclient.TLSConfig{}), srv.URL)
	result := client.Check()
	assert.False(t, result.Healthy)
}
