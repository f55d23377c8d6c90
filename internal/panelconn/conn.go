package panelconn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pkt.systems/nbmux/schema"
	"pkt.systems/pslog"
)

// State is the observed connectivity of the manager.
type State string

const (
	// StateDisconnected means no live transport connection exists.
	StateDisconnected State = "disconnected"
	// StateConnecting means a dial or scheduled reconnect is in progress.
	StateConnecting State = "connecting"
	// StateConnected means frames can be sent and received.
	StateConnected State = "connected"
)

// FrameConn is one bidirectional message connection. ReadFrame blocks
// until a frame arrives or the connection fails.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer opens a new frame connection to the backend.
type Dialer interface {
	Dial(ctx context.Context) (FrameConn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context) (FrameConn, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context) (FrameConn, error) { return f(ctx) }

// Hooks are the three observable moments of the connection. All hooks
// run on the manager's read goroutine; handlers must not block.
type Hooks struct {
	OnOpen  func()
	OnClose func()
	OnFrame func(frame []byte)
}

// Options configures a Manager.
type Options struct {
	// AutoReconnect schedules a single coalesced reconnection attempt
	// after ReconnectDelay whenever the connection drops.
	AutoReconnect  bool
	ReconnectDelay time.Duration
	Logger         pslog.Logger
}

// Manager owns exactly one live transport connection at a time and
// multiplexes every conversation over it.
type Manager struct {
	dialer    Dialer
	hooks     Hooks
	reconnect bool
	delay     time.Duration
	log       pslog.Logger

	mu      sync.Mutex
	state   State
	conn    FrameConn
	gen     int
	timer   *time.Timer
	pending bool
	closed  bool
}

var afterFunc = time.AfterFunc

// NewManager constructs a Manager. Hooks may be zero; nil callbacks are
// skipped.
func NewManager(dialer Dialer, hooks Hooks, opts Options) *Manager {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = schema.DefaultReconnectDelay
	}
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Manager{
		dialer:    dialer,
		hooks:     hooks,
		reconnect: opts.AutoReconnect,
		delay:     delay,
		log:       log,
		state:     StateDisconnected,
	}
}

// SetHooks replaces the frame listeners. Intended for wiring handlers
// that themselves hold a reference to the manager; call before Connect.
func (m *Manager) SetHooks(hooks Hooks) {
	m.mu.Lock()
	if !m.closed {
		m.hooks = hooks
	}
	m.mu.Unlock()
}

// State returns the observed connectivity.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the backend and starts delivering frames. A no-op while
// a connection is live or a dial is already in progress.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return schema.ErrConnClosed
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.log.Warn("conn dial failed", "err", err)
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateDisconnected
		}
		closed := m.closed
		m.mu.Unlock()
		if !closed {
			m.scheduleReconnect()
		}
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return schema.ErrConnClosed
	}
	m.conn = conn
	m.state = StateConnected
	m.gen++
	gen := m.gen
	onOpen := m.hooks.OnOpen
	m.mu.Unlock()

	m.log.Info("conn opened")
	if onOpen != nil {
		onOpen()
	}
	go m.readLoop(conn, gen)
	return nil
}

// Reconnect requests a reconnection attempt. A no-op while connected,
// while a dial is in progress, or while a retry is already pending.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	busy := m.closed || m.state != StateDisconnected || m.pending
	m.mu.Unlock()
	if busy {
		return
	}
	go func() { _ = m.Connect(context.Background()) }()
}

// Send marshals the message and writes it as one frame. Fire-and-forget:
// the caller gets an error only when no connection exists or the local
// write fails.
func (m *Manager) Send(msg schema.Outbound) error {
	m.mu.Lock()
	conn := m.conn
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return schema.ErrConnClosed
	}
	if conn == nil {
		return schema.ErrNotConnected
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.WriteFrame(frame); err != nil {
		m.log.Warn("conn send failed", "kind", msg.Kind, "err", err)
		return err
	}
	m.log.Trace("conn frame sent", "kind", msg.Kind, "bytes", len(frame))
	return nil
}

// Close cancels any pending reconnection, detaches the frame listeners,
// and closes the transport. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending = false
	m.hooks = Hooks{}
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()
	m.log.Info("conn closed")
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) readLoop(conn FrameConn, gen int) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			m.handleDisconnect(conn, gen, err)
			return
		}
		m.mu.Lock()
		stale := m.closed || m.gen != gen
		onFrame := m.hooks.OnFrame
		m.mu.Unlock()
		if stale {
			return
		}
		if onFrame != nil {
			onFrame(frame)
		}
	}
}

func (m *Manager) handleDisconnect(conn FrameConn, gen int, cause error) {
	m.mu.Lock()
	if m.closed || m.gen != gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	onClose := m.hooks.OnClose
	m.mu.Unlock()
	_ = conn.Close()
	m.log.Warn("conn lost", "err", cause)
	if onClose != nil {
		onClose()
	}
	m.scheduleReconnect()
}

// scheduleReconnect arms a single retry timer; duplicate requests while
// one is pending coalesce into that timer.
func (m *Manager) scheduleReconnect() {
	if !m.reconnect {
		return
	}
	m.mu.Lock()
	if m.closed || m.pending {
		m.mu.Unlock()
		return
	}
	m.pending = true
	delay := m.delay
	m.timer = afterFunc(delay, func() {
		m.mu.Lock()
		m.pending = false
		m.timer = nil
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		_ = m.Connect(context.Background())
	})
	m.mu.Unlock()
	m.log.Debug("conn retry scheduled", "delay", delay)
}
