package traceserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected trace viewer.
type client struct {
	conn         *websocket.Conn
	send         chan Event
	subscription *Subscription
	broadcaster  *Broadcaster
	mu           sync.Mutex
}

// subscribeRequest is a viewer's filter selection, sent as the first
// websocket message after connecting.
type subscribeRequest struct {
	SessionID  string   `json:"sessionId"`
	EventTypes []string `json:"events"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("traceserver: websocket upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan Event, 256), broadcaster: s.broadcaster}
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.cleanup()
		if err := c.conn.Close(); err != nil {
			log.Printf("traceserver: websocket close error: %v", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("traceserver: websocket error: %v", err)
			}
			break
		}
		var req subscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.Printf("traceserver: bad subscription request: %v", err)
			continue
		}
		c.subscribe(req)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			log.Printf("traceserver: websocket close error: %v", err)
		}
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) subscribe(req subscribeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscription != nil {
		c.broadcaster.Unsubscribe(c.subscription)
	}
	eventTypes := make([]EventType, 0, len(req.EventTypes))
	for _, t := range req.EventTypes {
		eventTypes = append(eventTypes, EventType(t))
	}
	c.subscription = c.broadcaster.Subscribe(req.SessionID, eventTypes)
	go c.forwardEvents(c.subscription)
}

func (c *client) forwardEvents(sub *Subscription) {
	for event := range sub.Channel {
		select {
		case c.send <- event:
		default:
		}
	}
}

func (c *client) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscription != nil {
		c.broadcaster.Unsubscribe(c.subscription)
		c.subscription = nil
	}
}
