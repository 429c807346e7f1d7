// Package server implements the authoritative host: session registry, message
// router, and the fixed-rate broadcast loop over one shared state store.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"flyknight/netplay/internal/config"
	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/state"
	"flyknight/netplay/internal/transport"
)

// BroadcastSink receives a copy of everything the host pushes to sessions:
// reactive events and periodic state frames. Used by the replay recorder.
type BroadcastSink interface {
	RecordEvent(messageType string, encoded []byte) error
	RecordFrame(encoded []byte) error
}

// Stats is a point-in-time summary of host activity.
type Stats struct {
	Clients       int     `json:"clients"`
	Broadcasts    uint64  `json:"broadcasts"`
	Players       int     `json:"players"`
	Enemies       int     `json:"enemies"`
	Items         int     `json:"items"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Option configures optional Server behaviour at construction time.
type Option func(*Server)

// WithLogger overrides the default global logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithBroadcastSink mirrors outbound traffic into the sink.
func WithBroadcastSink(sink BroadcastSink) Option {
	return func(s *Server) { s.sink = sink }
}

// WithFrameObserver registers a callback invoked with every encoded
// game_state frame, outside any lock. Used by the spectator feed.
func WithFrameObserver(observer func(encoded []byte)) Option {
	return func(s *Server) { s.frameObserver = observer }
}

// Server is the explicit host context handed to every worker; there are no
// process-wide singletons behind it.
type Server struct {
	cfg   *config.Config
	log   *logging.Logger
	store *state.Store

	listener net.Listener

	mu       sync.Mutex
	sessions map[int]*session
	nextID   int
	closing  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// removals tracks removal workers spawned off the broadcast path so Close
	// can drain them instead of racing a late player_left.
	removals sync.WaitGroup

	started    time.Time
	broadcasts atomic.Uint64

	// rejectLimiter paces the accept loop through capacity-rejection storms so
	// a reconnecting peer cannot spin it hot.
	rejectLimiter *rate.Limiter

	sink          BroadcastSink
	frameObserver func([]byte)
}

// New constructs a host bound to the provided configuration. Call Start to
// begin listening.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:           cfg,
		log:           logging.L(),
		sessions:      make(map[int]*session),
		rejectLimiter: rate.NewLimiter(rate.Limit(10), 10),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.store = state.NewStore(s.log)
	return s
}

// Store exposes the authoritative state store to in-process collaborators.
func (s *Server) Store() *state.Store { return s.store }

// UpdateGameState folds a collaborator update into the authoritative
// snapshot. The next periodic broadcast carries it to every session.
func (s *Server) UpdateGameState(update state.Update) {
	s.store.Merge(update)
}

// Addr reports the bound listen address, useful when the port was 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats summarizes current host activity.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	clients := len(s.sessions)
	s.mu.Unlock()
	players, enemies, items := s.store.Counts()
	var uptime float64
	if !s.started.IsZero() {
		uptime = time.Since(s.started).Seconds()
	}
	return Stats{
		Clients:       clients,
		Broadcasts:    s.broadcasts.Load(),
		Players:       players,
		Enemies:       enemies,
		Items:         items,
		UptimeSeconds: uptime,
	}
}

// Start binds the listener and launches the accept and broadcast workers. A
// bind failure is fatal to the host and reported to the caller; nothing is
// retried here.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", s.cfg.Address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = time.Now()

	s.wg.Add(2)
	go s.acceptLoop()
	go s.broadcastLoop()

	s.log.Info("host listening",
		logging.String("addr", listener.Addr().String()),
		logging.Int("max_players", s.cfg.MaxPlayers),
		logging.Int("tick_rate", s.cfg.TickRate))
	return nil
}

// Close stops the workers, closes every session, and waits for all goroutines
// to drain. Idempotent.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	s.closing = true
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		_ = sess.conn.Close()
	}

	s.wg.Wait()
	s.removals.Wait()
	s.log.Info("host stopped", logging.Int64("broadcasts", int64(s.broadcasts.Load())))
	return nil
}

func (s *Server) running() bool {
	if s.ctx == nil {
		return false
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}

func (s *Server) transportOptions() transport.Options {
	return transport.Options{
		ReadTimeout:   s.cfg.ReadTimeout,
		WriteTimeout:  s.cfg.WriteTimeout,
		MaxFrameBytes: s.cfg.MaxFrameBytes,
	}
}
