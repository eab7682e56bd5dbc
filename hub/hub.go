package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound buffer per connection; a client that falls this far behind
	// is dropped rather than blocking the publisher.
	sendBuffer = 64
)

// Conn is the server end of one live client connection. It belongs to at
// most one room at a time, and to none until the client joins.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
}

// WritePump drains the send buffer to the websocket and keeps the
// connection alive with pings. It exits when the hub closes the buffer or a
// write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub owns the mapping from user identity to live connections. The mapping
// is process-local and rebuilt from nothing on restart; room membership
// never survives a reconnect.
type Hub struct {
	log *log.Logger

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	rooms  map[string]map[*Conn]struct{}
	member map[*Conn]string
}

// New creates an empty hub.
func New(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		log:    logger,
		conns:  map[*Conn]struct{}{},
		rooms:  map[string]map[*Conn]struct{}{},
		member: map[*Conn]string{},
	}
}

// NewConn registers a fresh connection with the hub. The connection is not
// in any room until Join is called.
func (h *Hub) NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{hub: h, ws: ws, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Join places the connection in the room keyed by userID. Rejoining the same
// room is a no-op; joining a different room moves the connection.
func (h *Hub) Join(c *Conn, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, alive := h.conns[c]; !alive {
		return
	}
	if current, ok := h.member[c]; ok {
		if current == userID {
			return
		}
		h.detachLocked(c, current)
	}
	room, ok := h.rooms[userID]
	if !ok {
		room = map[*Conn]struct{}{}
		h.rooms[userID] = room
	}
	room[c] = struct{}{}
	h.member[c] = userID
	h.log.WithFields(log.Fields{"room": userID}).Debug("connection joined room")
}

// Leave removes the connection from its room and the hub. Safe to call more
// than once; it never errors.
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) detachLocked(c *Conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.member, c)
}

func (h *Hub) dropLocked(c *Conn) {
	if _, alive := h.conns[c]; !alive {
		return
	}
	delete(h.conns, c)
	if room, ok := h.member[c]; ok {
		h.detachLocked(c, room)
	}
	close(c.send)
}

// Publish encodes the event and delivers it to the named room.
func (h *Hub) Publish(room string, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Deliver(room, data)
	return nil
}

// Deliver pushes raw event bytes to every connection currently in the room,
// or to every connection when room is AllRooms. The whole delivery runs
// under the hub lock: sends are non-blocking, and Leave closes the send
// buffer under the same lock, so a concurrent disconnect can never close a
// channel mid-delivery. A connection whose buffer is full is dropped; it
// permanently misses the event and must refetch after reconnecting.
func (h *Hub) Deliver(room string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Conn
	if room == domain.AllRooms {
		targets = make([]*Conn, 0, len(h.conns))
		for c := range h.conns {
			targets = append(targets, c)
		}
	} else {
		members := h.rooms[room]
		targets = make([]*Conn, 0, len(members))
		for c := range members {
			targets = append(targets, c)
		}
	}

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.log.WithFields(log.Fields{"room": room}).Warn("send buffer full, dropping connection")
			h.dropLocked(c)
		}
	}
}

// RoomSize reports how many connections are joined to the room.
func (h *Hub) RoomSize(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[userID])
}
