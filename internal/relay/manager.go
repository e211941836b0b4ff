package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deskbase/chatd/internal/dispatch"
	"github.com/deskbase/chatd/internal/model"
	"github.com/deskbase/chatd/internal/wire"
	"go.uber.org/zap"
)

const (
	defaultHeartbeat   = 30 * time.Second
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 30 * time.Second
	defaultMaxAttempts = 10
	reconnectGrace     = time.Second
	writeTimeout       = 10 * time.Second
)

// Manager owns the single relay transport for one identity. It hides
// reconnection from callers: transport faults surface only as connection
// state changes on the dispatcher, never as errors to senders.
type Manager struct {
	base   string
	userID string
	token  string
	dial   Dialer
	d      *dispatch.Dispatcher
	logger *zap.Logger

	mu          sync.Mutex
	state       model.ConnState
	conn        Transport
	manualClose bool
	attempts    int
	retry       *time.Timer
	stopLoops   context.CancelFunc
	gen         int

	heartbeat   time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	maxAttempts int
	grace       time.Duration
}

// NewManager creates a relay manager for the given identity. It does not
// connect; call Connect.
func NewManager(base, userID, token string, d *dispatch.Dispatcher, logger *zap.Logger) *Manager {
	return &Manager{
		base:        base,
		userID:      userID,
		token:       token,
		dial:        DialWebsocket,
		d:           d,
		logger:      logger,
		state:       model.StateDisconnected,
		heartbeat:   defaultHeartbeat,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		maxAttempts: defaultMaxAttempts,
		grace:       reconnectGrace,
	}
}

// State returns the current connection state.
func (m *Manager) State() model.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the transport. Idempotent while already connected or a
// handshake is in flight. A handshake failure is returned to the caller
// but also feeds the background reconnection loop.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == model.StateConnected || m.state == model.StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = model.StateConnecting
	m.manualClose = false
	m.mu.Unlock()
	m.d.PublishState(model.StateConnecting)

	conn, err := m.dial(ctx, connectAddr(m.base, m.userID, m.token))
	if err != nil {
		m.mu.Lock()
		m.state = model.StateDisconnected
		m.mu.Unlock()
		m.d.PublishState(model.StateDisconnected)
		m.scheduleReconnect()
		return fmt.Errorf("relay connect: %w", err)
	}

	m.mu.Lock()
	if m.manualClose {
		// Disconnect won the race while the handshake was in flight;
		// the fresh transport must not resurrect the session.
		m.state = model.StateDisconnected
		m.mu.Unlock()
		_ = conn.Close()
		m.d.PublishState(model.StateDisconnected)
		return nil
	}
	m.conn = conn
	m.state = model.StateConnected
	m.attempts = 0
	m.gen++
	gen := m.gen
	loopCtx, cancel := context.WithCancel(context.Background())
	m.stopLoops = cancel
	m.mu.Unlock()

	m.logger.Info("relay connected", zap.String("user_id", m.userID))
	m.d.PublishState(model.StateConnected)

	go m.readLoop(loopCtx, conn, gen)
	go m.heartbeatLoop(loopCtx)

	return nil
}

// Disconnect closes the transport and suppresses reconnection. Terminal
// for the session until Connect is called again.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manualClose = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.stopLoops != nil {
		m.stopLoops()
		m.stopLoops = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = model.StateDisconnected
	m.gen++
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("relay disconnected", zap.String("user_id", m.userID))
	m.d.PublishState(model.StateDisconnected)
}

// Reconnect forces a disconnect-then-connect after a fixed grace pause,
// regardless of any backoff in progress.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()
	select {
	case <-time.After(m.grace):
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.Connect(ctx)
}

// Send pushes one frame over the transport. While not connected it is a
// no-op with a logged warning; callers that need guaranteed delivery must
// use the fallback client instead.
func (m *Manager) Send(f wire.Frame) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != model.StateConnected || conn == nil {
		m.logger.Warn("relay send dropped, not connected", zap.String("frame_type", string(f.Type)))
		return nil
	}

	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, data)
}

func (m *Manager) readLoop(ctx context.Context, conn Transport, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		m.route(frame)
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State() != model.StateConnected {
				return
			}
			ping, err := wire.NewFrame(wire.FramePing, nil)
			if err != nil {
				continue
			}
			if err := m.Send(ping); err != nil {
				m.logger.Warn("heartbeat write failed", zap.Error(err))
			}
		}
	}
}

// handleClosed processes a transport close observed by the read loop.
// Stale generations are ignored so a replaced connection cannot tear
// down its successor.
func (m *Manager) handleClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	manual := m.manualClose
	if m.stopLoops != nil {
		m.stopLoops()
		m.stopLoops = nil
	}
	m.conn = nil
	m.state = model.StateDisconnected
	m.mu.Unlock()

	m.d.PublishState(model.StateDisconnected)
	if manual {
		return
	}

	m.logger.Warn("relay connection lost", zap.Error(err))
	m.scheduleReconnect()
}

// scheduleReconnect arms the next reconnection attempt. Attempts are
// strictly sequential; the counter increments before computing the delay
// and a manual close or exhausted budget stops the loop.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.manualClose {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.maxAttempts {
		m.mu.Unlock()
		m.logger.Error("relay reconnect attempts exhausted", zap.Int("attempts", m.attempts))
		return
	}
	m.attempts++
	attempt := m.attempts
	delay := backoffDelay(attempt, m.backoffBase, m.backoffMax)
	m.retry = time.AfterFunc(delay, func() {
		if err := m.Connect(context.Background()); err != nil {
			m.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
	})
	m.mu.Unlock()

	m.logger.Info("relay reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

// backoffDelay returns min(base × 2^(attempt-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}
