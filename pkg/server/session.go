package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendBuffer is the per-session outbound queue. Broadcasts are
	// fire-and-forget: a session that cannot drain its queue has
	// frames dropped rather than blocking room mutation paths.
	sendBuffer = 64
)

// Session is one live connection and its optional (wallet, room)
// binding. A session is bound only after room creation, a successful
// join, buy-in or reconnect lookup.
type Session struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	wallet string
	roomID string
}

func newSession(conn *websocket.Conn) *Session {
	return &Session{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// bind associates the session with a wallet and room.
func (s *Session) bind(wallet, roomID string) {
	s.mu.Lock()
	s.wallet = wallet
	s.roomID = roomID
	s.mu.Unlock()
}

// clearRoom drops the room binding but keeps the wallet.
func (s *Session) clearRoom() {
	s.mu.Lock()
	s.roomID = ""
	s.mu.Unlock()
}

// identity returns the current binding.
func (s *Session) identity() (wallet, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet, s.roomID
}

// readPump reads frames from the socket and hands them to the server
// until the connection drops.
func (s *Session) readPump(srv *Server) {
	defer func() {
		srv.handleDisconnect(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				srv.log.Debugf("session read error: %v", err)
			}
			return
		}
		srv.handleMessage(s, raw)
	}
}

// writePump drains the outbound queue to the socket and keeps the
// connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
