package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"menuqr/internal/realtime/events"
	"menuqr/internal/realtime/gate"
	"menuqr/internal/xpkg/logger"
	"menuqr/internal/xpkg/metrics"
)

var (
	// ErrNoCredentials means the handshake has no bearer token; no connection
	// attempt is made at all.
	ErrNoCredentials = errors.New("no bearer credential, refusing to connect")
	// ErrTierNotEligible means the subscription tier is below the live-channel
	// threshold; the session must poll instead.
	ErrTierNotEligible = errors.New("subscription tier does not include a live channel")
	// ErrRetriesExhausted means the attempt cap was hit. The session stays
	// disconnected until an explicit Reconnect; the REST surface keeps working.
	ErrRetriesExhausted = errors.New("connection retries exhausted")
	ErrSessionClosed    = errors.New("session is closed")
)

// Credentials is the bearer handshake material for the live channel.
type Credentials struct {
	Token        string
	RestaurantID int64
}

// Transport dials the live channel. The AMQP implementation lives in this
// package; tests substitute fakes.
type Transport interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

// Conn is one live connection. Closed delivers the transport's native
// close/error notification; Events delivers decoded envelopes.
type Conn interface {
	Events() <-chan events.Envelope
	Closed() <-chan error
	Close() error
}

// Manager owns one session's live channel: it runs the feature gate, dials
// with a fixed-delay bounded retry policy, pumps events into the registry and
// tears everything down with the session. It is constructed at session start
// and disposed at session end; there is no ambient shared connection.
type Manager struct {
	transport   Transport
	registry    *Registry
	retryDelay  time.Duration
	maxAttempts int
	mets        *metrics.Registry
	mylog       *logger.Logger

	mu        sync.Mutex
	tier      gate.Tier
	creds     Credentials
	conn      Conn
	connected bool
	closed    bool
	gen       int
	onConnect func()
}

func NewManager(transport Transport, registry *Registry, tier gate.Tier, creds Credentials, retryDelay time.Duration, maxAttempts int, mets *metrics.Registry, mylog *logger.Logger) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		transport:   transport,
		registry:    registry,
		retryDelay:  retryDelay,
		maxAttempts: maxAttempts,
		tier:        tier,
		creds:       creds,
		mets:        mets,
		mylog:       mylog,
	}
}

// Connect runs the feature gate and dials. It fails closed without dialing
// when the credential is missing or the tier is not eligible.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.connected {
		m.mu.Unlock()
		return nil
	}
	tier, creds := m.tier, m.creds
	m.mu.Unlock()

	if creds.Token == "" {
		return ErrNoCredentials
	}
	if !gate.Allowed(tier) {
		return ErrTierNotEligible
	}
	return m.dialLoop(ctx)
}

// Reconnect is the explicit recovery path after the retry cap was exhausted.
// It grants a fresh attempt budget.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	// Invalidate the old pump before closing its conn, so its loss handler
	// cannot start a second dial loop alongside this one.
	m.gen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.mu.Unlock()

	return m.Connect(ctx)
}

// OnConnect registers fn to run after every successful connection, including
// automatic recoveries. The session uses it to reconcile its view with a full
// fetch; buffered event history is never trusted across a reconnect.
func (m *Manager) OnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = fn
	m.mu.Unlock()
}

// Reauthenticate re-runs the feature gate with fresh auth state. A downgrade
// below the threshold tears the channel down; an upgrade dials.
func (m *Manager) Reauthenticate(ctx context.Context, tier gate.Tier, creds Credentials) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.tier = tier
	m.creds = creds

	if !gate.Allowed(tier) {
		m.teardownLocked()
		m.mu.Unlock()
		m.mylog.Action("live_channel_revoked").Info("Tier downgrade removed live channel eligibility")
		return ErrTierNotEligible
	}
	m.mu.Unlock()

	return m.Connect(ctx)
}

// Connected reflects the transport's native open/close notifications.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Close ends the session: every registered callback is cleared and the
// connection is closed. The manager cannot be reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.teardownLocked()
	return nil
}

func (m *Manager) teardownLocked() {
	m.registry.Clear()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.gen++
	if m.mets != nil {
		m.mets.Connected.Set(0)
	}
}

// dialLoop makes up to maxAttempts dials with a fixed delay between them.
func (m *Manager) dialLoop(ctx context.Context) error {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if m.mets != nil {
			m.mets.ReconnectAttempts.Inc()
		}
		conn, err := m.transport.Dial(ctx, creds)
		if err == nil {
			return m.adopt(ctx, conn)
		}
		m.mylog.Action("connect_attempt_failed").Warn(fmt.Sprintf("Connection attempt %d/%d failed: %v", attempt, m.maxAttempts, err))

		if attempt == m.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.mylog.Action("connect_gave_up").Warn("Retry cap reached, staying in poll mode until explicit reconnect")
	return ErrRetriesExhausted
}

func (m *Manager) adopt(ctx context.Context, conn Conn) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	if m.conn != nil {
		m.conn.Close()
	}
	m.conn = conn
	m.connected = true
	m.gen++
	gen := m.gen
	onConnect := m.onConnect
	m.mu.Unlock()

	if m.mets != nil {
		m.mets.Connected.Set(1)
	}
	m.mylog.Action("live_channel_connected").Info("Live channel established")

	go m.pump(ctx, conn, gen)
	if onConnect != nil {
		onConnect()
	}
	return nil
}

// pump forwards envelopes to the registry until the transport reports the
// connection closed, then triggers the automatic retry policy.
func (m *Manager) pump(ctx context.Context, conn Conn, gen int) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-conn.Events():
			if !ok {
				m.handleLoss(ctx, gen, nil)
				return
			}
			m.registry.Dispatch(e)
		case err := <-conn.Closed():
			m.handleLoss(ctx, gen, err)
			return
		}
	}
}

func (m *Manager) handleLoss(ctx context.Context, gen int, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if m.mets != nil {
		m.mets.Connected.Set(0)
	}
	m.mylog.Action("live_channel_lost").Error("Live channel lost, retrying", cause)

	// Degradation is silent: the retry cap leaves the session in poll mode
	// without surfacing a hard error to the user.
	if err := m.dialLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.mylog.Action("live_channel_degraded").Warn("Session degraded to poll mode")
	}
}
