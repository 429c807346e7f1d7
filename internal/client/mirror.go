// Package client implements the read-only peer: a mirror that caches the
// host's latest snapshot and dispatches typed events to the owning game loop.
package client

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
	"flyknight/netplay/internal/transport"
)

// Handler consumes the typed payload of one received message. Handlers run on
// the mirror's receive worker, outside the cache lock; they must not block for
// long or they delay subsequent messages on this stream.
type Handler func(payload any)

// Options tunes the mirror connection.
type Options struct {
	// DialTimeout bounds the initial TCP connect.
	DialTimeout time.Duration
	// ReadTimeout bounds each blocking receive; timeouts are retried.
	ReadTimeout time.Duration
	// WriteTimeout bounds each intent send.
	WriteTimeout time.Duration
	// MaxFrameBytes caps inbound frames.
	MaxFrameBytes int64
	// Logger defaults to the global logger.
	Logger *logging.Logger
}

// Mirror holds the eventually-consistent local copy of the host's snapshot.
// It never mutates canonical state; it only submits intents and replaces its
// cache wholesale on every broadcast.
type Mirror struct {
	conn *transport.Conn
	log  *logging.Logger

	mu       sync.Mutex
	snapshot protocol.GameStateSnapshot
	playerID int
	hasID    bool

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a host and starts the receive worker. The worker exits on
// stream failure and never reconnects; reconnection policy belongs to the
// caller.
func Dial(addr string, opts Options) (*Mirror, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	conn, err := transport.Dial(addr, dialTimeout, transport.Options{
		ReadTimeout:   opts.ReadTimeout,
		WriteTimeout:  opts.WriteTimeout,
		MaxFrameBytes: opts.MaxFrameBytes,
	})
	if err != nil {
		return nil, err
	}
	m := &Mirror{
		conn:     conn,
		log:      logger.With(logging.String("remote", conn.RemoteAddr().String())),
		snapshot: protocol.NewGameStateSnapshot(),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
	m.connected.Store(true)
	go m.receiveLoop()
	return m, nil
}

// On registers a handler for one message type. Multiple handlers per type are
// invoked in registration order.
func (m *Mirror) On(messageType string, handler Handler) {
	if handler == nil {
		return
	}
	m.handlersMu.Lock()
	m.handlers[messageType] = append(m.handlers[messageType], handler)
	m.handlersMu.Unlock()
}

// Connected reports whether the receive worker is still serving the stream.
func (m *Mirror) Connected() bool { return m.connected.Load() }

// Done is closed when the mirror disconnects for any reason.
func (m *Mirror) Done() <-chan struct{} { return m.done }

// PlayerID returns the host-assigned id once the welcome has arrived.
func (m *Mirror) PlayerID() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerID, m.hasID
}

// Snapshot returns a defensive copy of the cached world state; readers never
// observe a half-applied broadcast.
func (m *Mirror) Snapshot() protocol.GameStateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Clone()
}

// Close tears the connection down and stops the receive worker. Idempotent.
func (m *Mirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.connected.Store(false)
		err = m.conn.Close()
	})
	return err
}

// SendPlayerUpdate publishes this player's current state to the host.
func (m *Mirror) SendPlayerUpdate(view protocol.PlayerView) error {
	return m.send(protocol.NewMessage(protocol.TypePlayerUpdate, view))
}

// SendAttack submits a cosmetic attack signal.
func (m *Mirror) SendAttack(attack protocol.AttackPayload) error {
	return m.send(protocol.NewMessage(protocol.TypeAttack, attack))
}

// SendEnemyDamage reports an already-resolved damage outcome.
func (m *Mirror) SendEnemyDamage(damage protocol.EnemyDamagePayload) error {
	return m.send(protocol.NewMessage(protocol.TypeEnemyDamage, damage))
}

// SendPickupItem claims a world item.
func (m *Mirror) SendPickupItem(itemID int) error {
	return m.send(protocol.NewMessage(protocol.TypePickupItem, protocol.PickupItemPayload{ItemID: itemID}))
}

func (m *Mirror) send(msg protocol.Message) error {
	if !m.Connected() {
		return transport.ErrClosed
	}
	return m.conn.Send(msg)
}

func (m *Mirror) receiveLoop() {
	defer func() {
		m.connected.Store(false)
		close(m.done)
	}()
	for {
		msg, err := m.conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				if m.conn.Closed() {
					return
				}
				continue
			}
			var codecErr *protocol.CodecError
			if errors.As(err, &codecErr) {
				m.log.Warn("dropping undecodable message", logging.Error(codecErr))
				continue
			}
			if !errors.Is(err, transport.ErrClosed) {
				m.log.Warn("receive failed", logging.Error(err))
			}
			return
		}
		m.apply(msg)
		m.dispatch(msg)
	}
}

// apply updates the cache under the lock; handler dispatch happens after
// release so a slow handler cannot block Snapshot readers.
func (m *Mirror) apply(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeWelcome:
		welcome, ok := msg.Payload.(*protocol.WelcomePayload)
		if !ok {
			return
		}
		m.mu.Lock()
		m.playerID = welcome.PlayerID
		m.hasID = true
		m.snapshot = welcome.GameState.Clone()
		m.mu.Unlock()
		m.log.Info("assigned player id", logging.Int("player_id", welcome.PlayerID))
	case protocol.TypeGameState:
		snapshot, ok := msg.Payload.(*protocol.GameStateSnapshot)
		if !ok {
			return
		}
		m.mu.Lock()
		m.snapshot = snapshot.Clone()
		m.mu.Unlock()
	}
}

func (m *Mirror) dispatch(msg protocol.Message) {
	m.handlersMu.RLock()
	handlers := append([]Handler(nil), m.handlers[msg.Type]...)
	m.handlersMu.RUnlock()
	for _, handler := range handlers {
		handler(msg.Payload)
	}
}
