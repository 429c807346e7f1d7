package server

import (
	"errors"
	"net"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"flyknight/netplay/internal/logging"
	"flyknight/netplay/internal/protocol"
)

// broadcastFanout bounds how many session sends run concurrently during one
// broadcast.
const broadcastFanout = 8

// broadcast encodes once and fans the frame out to every ready session except
// the excluded ids. A failing session is scheduled for removal and never
// stalls delivery to the rest.
func (s *Server) broadcast(msg protocol.Message, exclude ...int) {
	encoded, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error("broadcast encode failed", logging.String("type", msg.Type), logging.Error(err))
		return
	}

	if s.sink != nil && msg.Type != protocol.TypeGameState {
		if err := s.sink.RecordEvent(msg.Type, encoded); err != nil {
			s.log.Warn("event record failed", logging.Error(err))
		}
	}

	s.sendToSessions(encoded, exclude...)
}

func (s *Server) sendToSessions(encoded []byte, exclude ...int) {
	excluded := make(map[int]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if _, skip := excluded[id]; skip {
			continue
		}
		if !sess.isReady() {
			continue
		}
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	swg := sizedwaitgroup.New(broadcastFanout)
	for _, sess := range targets {
		swg.Add()
		go func(sess *session) {
			defer swg.Done()
			if err := sess.conn.SendBytes(encoded); err != nil {
				sess.log.Warn("send failed, scheduling removal", logging.Error(err))
				s.scheduleRemoval(sess.id)
			}
		}(sess)
	}
	swg.Wait()
}

// broadcastLoop pushes the full snapshot to every session at the configured
// tick rate. The snapshot copy happens under the store lock; encoding and
// sending do not. A slow tick shortens only its own sleep — drift is not
// carried into later ticks.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	period := s.cfg.TickPeriod()
	for s.running() {
		start := time.Now()

		snapshot := s.store.Snapshot()
		msg := protocol.NewMessage(protocol.TypeGameState, snapshot)
		encoded, err := protocol.Encode(msg)
		if err != nil {
			// Skip this tick but keep the worker alive: a transient bad
			// snapshot must not leave every mirror stale for the rest of the
			// session.
			s.log.Error("snapshot encode failed, skipping tick", logging.Error(err))
		} else {
			if s.sink != nil {
				if err := s.sink.RecordFrame(encoded); err != nil {
					s.log.Warn("frame record failed", logging.Error(err))
				}
			}
			if s.frameObserver != nil {
				s.frameObserver(encoded)
			}

			s.sendToSessions(encoded)
			s.broadcasts.Add(1)
		}

		elapsed := time.Since(start)
		if elapsed > period {
			s.log.Debug("tick overran its period", logging.Duration("elapsed", elapsed))
		}
		if sleep := period - elapsed; sleep > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(sleep):
			}
		}
	}
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
