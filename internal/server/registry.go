package server

import (
	"errors"
	"net"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
	"flyknight/netplay/internal/transport"
)

// session binds a player id to its open transport. It exists in the registry
// iff the transport is open; remove tears both down together.
type session struct {
	id   int
	conn *transport.Conn
	addr net.Addr
	log  *logging.Logger

	// ready flips once the welcome frame has been written, keeping periodic
	// broadcasts from overtaking it.
	ready chan struct{}
}

func (sess *session) isReady() bool {
	select {
	case <-sess.ready:
		return true
	default:
		return false
	}
}

// acceptLoop blocks on the listener with a bounded deadline so shutdown is
// observed within one accept-timeout interval.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running() {
		if tcp, ok := s.listener.(*net.TCPListener); ok {
			_ = tcp.SetDeadline(deadlineFrom(s.cfg.AcceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if s.running() {
				s.log.Warn("accept failed", logging.Error(err))
			}
			continue
		}
		s.handleConn(conn)
	}
}

// handleConn performs the capacity check and, on success, runs the join
// handshake. Over-capacity connections are closed without an id; the rejected
// peer observes only a closed stream.
func (s *Server) handleConn(raw net.Conn) {
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxPlayers {
		s.mu.Unlock()
		_ = raw.Close()
		s.log.Info("rejected connection at capacity",
			logging.String("remote", raw.RemoteAddr().String()),
			logging.Int("max_players", s.cfg.MaxPlayers))
		if !s.rejectLimiter.Allow() {
			// A full lobby plus an aggressive reconnect loop should not turn
			// the accept loop into a busy loop.
			_ = s.rejectLimiter.Wait(s.ctx)
		}
		return
	}
	id := s.nextID
	s.nextID++
	sess := &session{
		id:    id,
		conn:  transport.NewConn(raw, s.transportOptions()),
		addr:  raw.RemoteAddr(),
		log:   s.log.With(logging.Int("player_id", id), logging.String("remote", raw.RemoteAddr().String())),
		ready: make(chan struct{}),
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	welcome := protocol.NewMessage(protocol.TypeWelcome, protocol.WelcomePayload{
		PlayerID:  id,
		GameState: s.store.Snapshot(),
	})
	if err := sess.conn.Send(welcome); err != nil {
		sess.log.Warn("welcome send failed", logging.Error(err))
		s.remove(id)
		return
	}
	close(sess.ready)

	sess.log.Info("player connected")
	s.broadcast(protocol.NewMessage(protocol.TypePlayerJoined, protocol.PlayerJoinedPayload{PlayerID: id}), id)

	s.wg.Add(1)
	go s.receiveLoop(sess)
}

// receiveLoop is the one worker per session: it forwards decoded messages to
// the router and tears the session down exactly once on stream failure.
func (s *Server) receiveLoop(sess *session) {
	defer s.wg.Done()
	for s.running() {
		msg, err := sess.conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			var codecErr *protocol.CodecError
			if errors.As(err, &codecErr) {
				// The frame was consumed; the stream is intact. Drop it.
				sess.log.Warn("dropping undecodable message", logging.Error(codecErr))
				continue
			}
			if !errors.Is(err, transport.ErrClosed) {
				sess.log.Warn("receive failed", logging.Error(err))
			}
			break
		}
		s.route(sess, msg)
	}
	s.remove(sess.id)
}

// remove closes the transport, drops the session and its player entry, and
// broadcasts player_left to the remaining peers. Safe to call repeatedly for
// the same id; only the first call observes the session.
func (s *Server) remove(id int) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, id)
	s.store.RemovePlayer(id)
	s.mu.Unlock()

	_ = sess.conn.Close()
	sess.log.Info("player disconnected")
	s.broadcast(protocol.NewMessage(protocol.TypePlayerLeft, protocol.PlayerLeftPayload{PlayerID: id}), id)
}

// scheduleRemoval runs remove on a tracked worker. During shutdown it is a
// no-op: Close already tears every session down and waits the workers out.
func (s *Server) scheduleRemoval(id int) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.removals.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.removals.Done()
		s.remove(id)
	}()
}

func (s *Server) hasSession(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}
