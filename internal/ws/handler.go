// Package ws exposes the calendar watch endpoint. A connected client joins
// the doctors whose calendars it is rendering and receives slot
// invalidation events for them until it leaves or disconnects.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/events"
)

const sendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// clientMessage is an inbound control frame from a calendar watcher.
type clientMessage struct {
	Action   string `json:"action"`
	DoctorID string `json:"doctorId"`
}

// Handler upgrades calendar watchers and bridges their subscriptions onto
// the in-process event bus.
type Handler struct {
	bus *events.Bus
	log zerolog.Logger
}

func NewHandler(bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		bus: bus,
		log: log.With().Str("component", "ws").Logger(),
	}
}

// client is one connected watcher and its active doctor subscriptions.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  zerolog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]func()
}

// ServeCalendar handles GET /ws/calendar.
func (h *Handler) ServeCalendar(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[uuid.UUID]func()),
	}
	c.log = h.log.With().Str("client_id", c.id).Logger()
	c.log.Debug().Msg("calendar watcher connected")

	go c.writePump()
	go h.readPump(c)
}

// readPump consumes join/leave frames until the connection drops, then
// tears down every subscription the watcher still holds.
func (h *Handler) readPump(c *client) {
	defer func() {
		c.leaveAll()
		close(c.done)
		c.conn.Close()
		c.log.Debug().Msg("calendar watcher disconnected")
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed frames.
		}

		doctorID, err := uuid.Parse(msg.DoctorID)
		if err != nil {
			continue
		}

		switch msg.Action {
		case "join":
			h.join(c, doctorID)
		case "leave":
			c.leave(doctorID)
		}
	}
}

// join subscribes the watcher to one doctor's calendar and starts a
// forwarder that feeds that subscription into the send channel.
func (h *Handler) join(c *client, doctorID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[doctorID]; ok {
		return
	}

	ch, cancel := h.bus.Subscribe(doctorID)
	c.subs[doctorID] = cancel

	go func() {
		for ev := range ch {
			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Warn().Err(err).Msg("marshal calendar event")
				continue
			}
			select {
			case c.send <- data:
			case <-c.done:
				return
			default:
				// Watcher buffer full; skip to avoid blocking.
			}
		}
	}()
}

func (c *client) leave(doctorID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.subs[doctorID]; ok {
		cancel()
		delete(c.subs, doctorID)
	}
}

func (c *client) leaveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for doctorID, cancel := range c.subs {
		cancel()
		delete(c.subs, doctorID)
	}
}

// writePump drains the send channel onto the wire until the connection is
// torn down or the first write fails.
func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}
