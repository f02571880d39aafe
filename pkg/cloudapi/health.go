package cloudapi

import (
	"time"

	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/cuemby/igniteclient/pkg/ierr"
)

// HealthResult is the outcome of one cloud connectivity health check,
// surfaced to the host over IPC as part of MqttConnectionStatus/IcStatus
// reporting.
type HealthResult struct {
	Healthy    bool
	StatusCode int
	Message    string
	Duration   time.Duration
}

// HealthClient hits HCPAuth.healthcheck_url through the shared session
// pool: a method/header/status-range builder narrowed to the one cloud
// health endpoint the client probes.
type HealthClient struct {
	Pool    *httpclient.Pool
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration

	StatusMin int
	StatusMax int
}

// NewHealthClient builds a client hitting url with a GET and the
// conventional 2xx/3xx success range.
func NewHealthClient(pool *httpclient.Pool, url string) *HealthClient {
	return &HealthClient{
		Pool:      pool,
		URL:       url,
		Method:    "GET",
		Headers:   map[string]string{},
		Timeout:   10 * time.Second,
		StatusMin: 200,
		StatusMax: 399,
	}
}

// Check performs the health request and classifies the result.
func (c *HealthClient) Check() HealthResult {
	start := time.Now()

	session, ok := c.Pool.Acquire()
	if !ok {
		return HealthResult{Healthy: false, Message: "http session pool exhausted", Duration: time.Since(start)}
	}
	defer c.Pool.Release(session)

	hreq := httpclient.NewHttpRequest(session)
	hreq.URL = c.URL
	hreq.Timeout = c.Timeout
	for k, v := range c.Headers {
		hreq.Headers[k] = v
	}

	var resp httpclient.Response
	if c.Method == "POST" {
		resp = hreq.Execute()
	} else {
		resp = hreq.ExecuteGet()
	}

	if resp.Code == ierr.Network || resp.Code == ierr.Timeout {
		return HealthResult{Healthy: false, Message: "unreachable", Duration: time.Since(start)}
	}

	healthy := resp.StatusCode >= c.StatusMin && resp.StatusCode <= c.StatusMax
	return HealthResult{
		Healthy:    healthy,
		StatusCode: resp.StatusCode,
		Message:    resp.Code.String(),
		Duration:   time.Since(start),
	}
}
