// Package ops exposes the host's operational surface: liveness/readiness and
// stats endpoints, and a read-only websocket feed carrying the same
// game_state frames the sessions receive.
package ops

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"flyknight/netplay/internal/logging"
)

const (
	spectatorSendBuffer = 16
	spectatorPingPeriod = 30 * time.Second
	spectatorWriteWait  = 5 * time.Second
)

// Feed fans broadcast frames out to read-only websocket spectators. Slow
// spectators are dropped, never waited on.
type Feed struct {
	log      *logging.Logger
	limiter  *rate.Limiter
	upgrader websocket.Upgrader

	mu         sync.Mutex
	spectators map[*spectator]struct{}
}

type spectator struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed constructs a spectator feed whose upgrades are paced by the given
// rate and burst.
func NewFeed(upgradesPerSecond float64, burst int, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.L()
	}
	return &Feed{
		log:     logger,
		limiter: rate.NewLimiter(rate.Limit(upgradesPerSecond), burst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		spectators: make(map[*spectator]struct{}),
	}
}

// Spectators reports the current viewer count.
func (f *Feed) Spectators() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spectators)
}

// Publish mirrors one encoded game_state frame to every spectator. Never
// blocks: a spectator whose buffer is full is disconnected.
func (f *Feed) Publish(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for spec := range f.spectators {
		select {
		case spec.send <- frame:
		default:
			close(spec.send)
			delete(f.spectators, spec)
		}
	}
}

// Handler upgrades an HTTP request into a spectator connection.
func (f *Feed) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !f.limiter.Allow() {
			http.Error(w, "too many spectators joining", http.StatusTooManyRequests)
			return
		}
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.log.Warn("spectator upgrade failed", logging.Error(err))
			return
		}
		spec := &spectator{conn: conn, send: make(chan []byte, spectatorSendBuffer)}
		f.mu.Lock()
		f.spectators[spec] = struct{}{}
		f.mu.Unlock()
		f.log.Info("spectator connected", logging.String("remote", conn.RemoteAddr().String()))

		go f.writeLoop(spec)
		go f.readLoop(spec)
	}
}

// Close disconnects every spectator.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for spec := range f.spectators {
		close(spec.send)
		delete(f.spectators, spec)
	}
}

func (f *Feed) writeLoop(spec *spectator) {
	ticker := time.NewTicker(spectatorPingPeriod)
	defer func() {
		ticker.Stop()
		spec.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-spec.send:
			_ = spec.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if !ok {
				_ = spec.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := spec.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				f.drop(spec)
				return
			}
		case <-ticker.C:
			_ = spec.conn.SetWriteDeadline(time.Now().Add(spectatorWriteWait))
			if err := spec.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				f.drop(spec)
				return
			}
		}
	}
}

// readLoop drains inbound traffic. Spectators never send anything meaningful;
// reading only serves close and control frame processing.
func (f *Feed) readLoop(spec *spectator) {
	for {
		if _, _, err := spec.conn.ReadMessage(); err != nil {
			f.drop(spec)
			return
		}
	}
}

func (f *Feed) drop(spec *spectator) {
	f.mu.Lock()
	if _, ok := f.spectators[spec]; ok {
		close(spec.send)
		delete(f.spectators, spec)
	}
	f.mu.Unlock()
	_ = spec.conn.Close()
}
