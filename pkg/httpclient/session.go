package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/cuemby/igniteclient/pkg/ierr"
)

// TLSConfig carries the attribute set every lazily constructed session
// honors. TLSEngineID/CertKeyType exist for PKCS#11-capable deployments;
// this build does not read them: sessions always load plain files, never
// through a hardware engine.
type TLSConfig struct {
	VerifyPeer  bool
	VerifyHost  bool
	CAFile      string
	CAPath      string
	ClientCert  string
	ClientKey   string
	TLSEngineID string
	CertKeyType string
	Timeout     time.Duration
}

// HttpSession wraps one *http.Client with the TLS/proxy/local-port-range
// settings the pool applies both at construction and retroactively to an
// already-acquired session.
type HttpSession struct {
	mu sync.Mutex

	client *http.Client
	tlsCfg TLSConfig

	proxyHost string
	proxyPort int
	proxyUser string
	proxyPass string

	localPortMin int
	localPortMax int

	lastErrorCode ierr.Code
}

// newHttpSession builds a session with the pool's current TLS attribute
// set. TLS construction failures are not fatal to the pool — TLS material
// that fails to load (CA file, client key pair) is skipped and the client
// is built without it, so the request layer can still surface a
// meaningful error code rather than a nil pointer.
func newHttpSession(cfg TLSConfig) *HttpSession {
	s := &HttpSession{tlsCfg: cfg}
	s.client = s.buildClient()
	return s
}

func (s *HttpSession) buildClient() *http.Client {
	tlsConf := &tls.Config{InsecureSkipVerify: !s.tlsCfg.VerifyPeer} //nolint:gosec // configuration-driven verify-peer flag

	if s.tlsCfg.CAFile != "" {
		if pool, err := loadCAPool(s.tlsCfg.CAFile); err == nil {
			tlsConf.RootCAs = pool
		}
	}
	if s.tlsCfg.ClientCert != "" && s.tlsCfg.ClientKey != "" {
		if cert, err := tls.LoadX509KeyPair(s.tlsCfg.ClientCert, s.tlsCfg.ClientKey); err == nil {
			tlsConf.Certificates = []tls.Certificate{cert}
		}
	}
	if !s.tlsCfg.VerifyHost {
		tlsConf.InsecureSkipVerify = true
	}

	transport := &http.Transport{TLSClientConfig: tlsConf}
	s.applyProxyLocked(transport)
	s.applyLocalPortRangeLocked(transport)

	timeout := s.tlsCfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates parsed from %s", caFile)
	}
	return pool, nil
}

func (s *HttpSession) applyProxyLocked(transport *http.Transport) {
	if s.proxyHost == "" {
		return
	}
	proxyURL := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", s.proxyHost, s.proxyPort)}
	if s.proxyUser != "" {
		proxyURL.User = url.UserPassword(s.proxyUser, s.proxyPass)
	}
	transport.Proxy = http.ProxyURL(proxyURL)
}

// setProxy applies proxy settings to this session, rebuilding its
// transport so the change takes effect immediately, on already-acquired
// sessions and not just future ones.
func (s *HttpSession) setProxy(host string, port int, user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxyHost, s.proxyPort, s.proxyUser, s.proxyPass = host, port, user, password
	s.client = s.buildClient()
}

func (s *HttpSession) setLocalPortRange(start, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localPortMin, s.localPortMax = start, end
	s.client = s.buildClient()
}

// applyLocalPortRangeLocked binds outbound connections to the low end of
// the configured local port range via a custom dialer. The range exists
// to cooperate with a restrictive firewall's allowed outbound port set;
// picking the first port of the range is sufficient for that purpose and
// avoids per-dial rotation.
func (s *HttpSession) applyLocalPortRangeLocked(transport *http.Transport) {
	if s.localPortMin <= 0 {
		return
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		LocalAddr: &net.TCPAddr{Port: s.localPortMin},
	}
	transport.DialContext = dialer.DialContext
}

// LastErrorCode reports the taxonomy code of the most recent request this
// session executed.
func (s *HttpSession) LastErrorCode() ierr.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErrorCode
}

func (s *HttpSession) setLastErrorCode(code ierr.Code) {
	s.mu.Lock()
	s.lastErrorCode = code
	s.mu.Unlock()
}
