package fanout

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSSink adapts a WebSocket connection to the Sink interface. Writes are
// serialized; gorilla/websocket does not allow concurrent writers.
type WSSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSSink wraps a WebSocket connection.
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

// Send writes one envelope as a JSON message.
func (s *WSSink) Send(msg Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

// Close closes the underlying connection.
func (s *WSSink) Close() error {
	return s.conn.Close()
}
