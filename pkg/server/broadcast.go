package server

import (
	"encoding/json"
)

// subscribe adds a session to a room's broadcast set.
func (s *Server) subscribe(sess *Session, roomID string) {
	s.mu.Lock()
	set, ok := s.rooms[roomID]
	if !ok {
		set = make(map[*Session]struct{})
		s.rooms[roomID] = set
	}
	set[sess] = struct{}{}
	s.mu.Unlock()
}

// unsubscribe removes a session from a room's broadcast set, dropping
// the set when it empties.
func (s *Server) unsubscribe(sess *Session, roomID string) {
	s.mu.Lock()
	if set, ok := s.rooms[roomID]; ok {
		delete(set, sess)
		if len(set) == 0 {
			delete(s.rooms, roomID)
		}
	}
	s.mu.Unlock()
}

// dropRoom discards a room's entire broadcast set.
func (s *Server) dropRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()

	s.locksMu.Lock()
	delete(s.roomLocks, roomID)
	s.locksMu.Unlock()

	s.timersMu.Lock()
	delete(s.actionGens, roomID)
	s.timersMu.Unlock()
}

// send marshals and queues one event for a single session. A full
// send buffer drops the message rather than blocking the caller; the
// client recovers state on its next reconnect.
func (s *Server) send(sess *Session, msgType string, payload any) {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		s.log.Errorf("marshal %s event: %v", msgType, err)
		return
	}
	select {
	case sess.send <- data:
	default:
		s.log.Warnf("dropping %s event, session buffer full", msgType)
	}
}

// sendError reports a failed operation back to its originator.
func (s *Server) sendError(sess *Session, msg string) {
	s.send(sess, MsgError, ErrorPayload{Message: msg})
}

// broadcastToRoom fans one event out to every subscriber of a room.
func (s *Server) broadcastToRoom(roomID string, msgType string, payload any) {
	s.mu.RLock()
	subs := make([]*Session, 0, len(s.rooms[roomID]))
	for sess := range s.rooms[roomID] {
		subs = append(subs, sess)
	}
	s.mu.RUnlock()

	for _, sess := range subs {
		s.send(sess, msgType, payload)
	}
}

// broadcastRoomState sends each subscriber its own view of the room:
// the shared room record and seat list, plus the hand state with every
// other player's hole cards stripped.
func (s *Server) broadcastRoomState(roomID string) {
	room, err := s.dir.GetRoom(roomID)
	if err != nil {
		s.log.Errorf("room state for %s: %v", roomID, err)
		return
	}
	players, err := s.dir.ListSeatedPlayers(roomID)
	if err != nil {
		s.log.Errorf("players for %s: %v", roomID, err)
		return
	}
	state, err := s.dir.GetHandState(roomID)
	if err != nil {
		s.log.Errorf("hand state for %s: %v", roomID, err)
		return
	}

	s.mu.RLock()
	subs := make([]*Session, 0, len(s.rooms[roomID]))
	for sess := range s.rooms[roomID] {
		subs = append(subs, sess)
	}
	s.mu.RUnlock()

	for _, sess := range subs {
		wallet, _ := sess.identity()
		s.send(sess, MsgRoomState, RoomStatePayload{
			Room:      room,
			Players:   players,
			GameState: state.RedactFor(wallet),
		})
	}
}

// roomStateFor builds the redacted room snapshot a single wallet is
// allowed to see. Used in direct replies such as reconnect_success.
func (s *Server) roomStateFor(roomID, wallet string) (*RoomStatePayload, error) {
	room, err := s.dir.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	players, err := s.dir.ListSeatedPlayers(roomID)
	if err != nil {
		return nil, err
	}
	state, err := s.dir.GetHandState(roomID)
	if err != nil {
		return nil, err
	}
	return &RoomStatePayload{Room: room, Players: players, GameState: state.RedactFor(wallet)}, nil
}
