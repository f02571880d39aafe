package httpclient

import (
	"sync"

	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/cuemby/igniteclient/pkg/metrics"
)

// MaxSessions is the pool's fixed cardinality.
const MaxSessions = 8

// poolWarningThreshold is the acquired-count at which Acquire emits its
// one-shot exhaustion warning.
const poolWarningThreshold = MaxSessions - 2

// SessionFactory builds a session given the pool's TLS attribute set,
// letting an embedder substitute a non-default transport.
type SessionFactory func(TLSConfig) *HttpSession

type slot struct {
	session *HttpSession
	held    bool
}

// Pool is the bounded, reusable TLS session pool: at most MaxSessions
// sessions exist at once, constructed lazily on first Acquire, and every
// field is guarded by one mutex (no nested locking with other
// components).
type Pool struct {
	mu sync.Mutex

	tlsCfg  TLSConfig
	slots   [MaxSessions]slot
	factory SessionFactory

	proxyHost, proxyUser, proxyPass string
	proxyPort                       int
	hasProxy                        bool

	localPortMin, localPortMax int

	acquiredCount int
	warned        bool

	// OnThresholdWarning, if set, is invoked (outside the pool's lock)
	// the first time acquiredCount crosses poolWarningThreshold.
	OnThresholdWarning func(acquiredCount int)
}

// NewPool builds an empty pool with the given TLS attribute set.
func NewPool(tlsCfg TLSConfig) *Pool {
	return &Pool{tlsCfg: tlsCfg}
}

// SetExternalSessionFactory installs factory as the session constructor;
// passing nil restores the built-in constructor.
func (p *Pool) SetExternalSessionFactory(factory SessionFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factory = factory
}

// Acquire returns the first free slot, lazily constructing its session on
// first use, or reports false if every slot is held.
func (p *Pool) Acquire() (*HttpSession, bool) {
	p.mu.Lock()

	idx := -1
	for i := range p.slots {
		if !p.slots[i].held {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.mu.Unlock()
		return nil, false
	}

	if p.slots[idx].session == nil {
		p.slots[idx].session = p.newSessionLocked()
	}
	p.slots[idx].held = true
	p.acquiredCount++

	crossedThreshold := p.acquiredCount == poolWarningThreshold && !p.warned
	if crossedThreshold {
		p.warned = true
	}
	session := p.slots[idx].session
	hook := p.OnThresholdWarning
	count := p.acquiredCount
	p.mu.Unlock()

	metrics.PoolAcquiredSessions.Set(float64(count))
	if crossedThreshold && hook != nil {
		hook(count)
	}
	return session, true
}

func (p *Pool) newSessionLocked() *HttpSession {
	if p.factory != nil {
		return p.factory(p.tlsCfg)
	}
	s := newHttpSession(p.tlsCfg)
	if p.hasProxy {
		s.setProxy(p.proxyHost, p.proxyPort, p.proxyUser, p.proxyPass)
	}
	if p.localPortMin > 0 {
		s.setLocalPortRange(p.localPortMin, p.localPortMax)
	}
	return s
}

// Release returns session to the pool. A session whose last recorded
// error was not Ok is disposed and rebuilt lazily on the next Acquire, so
// a stuck handle is never reused.
func (p *Pool) Release(session *HttpSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if p.slots[i].session == session && p.slots[i].held {
			p.slots[i].held = false
			p.acquiredCount--
			if p.acquiredCount < poolWarningThreshold {
				p.warned = false
			}
			if session.LastErrorCode() != ierr.Ok {
				p.slots[i].session = nil
			}
			metrics.PoolAcquiredSessions.Set(float64(p.acquiredCount))
			return
		}
	}
}

// SetProxy applies proxy settings to newly acquired sessions and
// immediately to every currently acquired session.
func (p *Pool) SetProxy(host string, port int, user, password string) {
	p.mu.Lock()
	p.proxyHost, p.proxyPort, p.proxyUser, p.proxyPass = host, port, user, password
	p.hasProxy = true
	sessions := p.heldSessionsLocked()
	p.mu.Unlock()

	for _, s := range sessions {
		s.setProxy(host, port, user, password)
	}
}

// SetLocalPortRange applies a local outbound port range to newly acquired
// sessions and immediately to every currently acquired session.
func (p *Pool) SetLocalPortRange(start, end int) {
	p.mu.Lock()
	p.localPortMin, p.localPortMax = start, end
	sessions := p.heldSessionsLocked()
	p.mu.Unlock()

	for _, s := range sessions {
		s.setLocalPortRange(start, end)
	}
}

func (p *Pool) heldSessionsLocked() []*HttpSession {
	var out []*HttpSession
	for i := range p.slots {
		if p.slots[i].session != nil {
			out = append(out, p.slots[i].session)
		}
	}
	return out
}

// AcquiredCount reports how many slots are currently held.
func (p *Pool) AcquiredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquiredCount
}
