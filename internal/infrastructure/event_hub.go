package infrastructure

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"leadengage/internal/usecases"
)

// EventClient is one connected dashboard socket.
type EventClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans conversation-store events out to connected operator
// dashboards. It is read-only from the clients' perspective; inbound
// frames are drained and ignored.
type EventHub struct {
	clients    map[*EventClient]bool
	register   chan *EventClient
	unregister chan *EventClient
	broadcast  chan usecases.Event
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*EventClient]bool),
		register:   make(chan *EventClient),
		unregister: make(chan *EventClient),
		broadcast:  make(chan usecases.Event, 256),
	}
}

func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Debug().Int("clients", len(h.clients)).Msg("event client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal event")
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer, drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Publish implements usecases.EventSink. It never blocks the store; if
// the hub is saturated the event is dropped.
func (h *EventHub) Publish(e usecases.Event) {
	select {
	case h.broadcast <- e:
	default:
		log.Warn().Str("type", e.Type).Msg("event hub saturated, dropping event")
	}
}

// ServeConn attaches an upgraded websocket connection to the hub.
func (h *EventHub) ServeConn(conn *websocket.Conn) {
	client := &EventClient{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *EventClient) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *EventClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
