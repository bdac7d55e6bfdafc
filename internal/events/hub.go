package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"sleuth/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message types pushed to subscribers.
const (
	TypeWelcome       = "welcome"
	TypeRunStarted    = "runStarted"
	TypeStepCompleted = "stepCompleted"
	TypeRunCompleted  = "runCompleted"
	TypeRecentRuns    = "recentRuns"
	TypePong          = "pong"
	TypePing          = "ping"
)

// Message is the envelope for every frame on the wire.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type runStartedData struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	StartedAt   time.Time `json:"startedAt"`
}

type stepCompletedData struct {
	RunID string     `json:"runId"`
	Step  agent.Step `json:"step"`
}

// Client is one websocket subscriber. Its done channel, not channel close,
// signals teardown so concurrent enqueues can never hit a closed channel.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	id   string
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// enqueue serializes msg onto the client's send queue, dropping it when the
// queue is full or the client is going away.
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}

// Hub fans investigation lifecycle events out to websocket subscribers. It
// implements agent.Sink, so wiring it into the investigator is enough to
// stream every run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	recent     func() []agent.Run
	mu         sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a hub. recent supplies the run history replayed to clients
// on request; nil disables replay.
func NewHub(recent func() []agent.Run) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		recent:     recent,
		stop:       make(chan struct{}),
	}
}

// Run owns the client set until Stop is called.
func (h *Hub) Run() {
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client", client.id).Msg("Event subscriber connected")
			client.enqueue(Message{Type: TypeWelcome, Data: map[string]string{"service": "sleuth"}})

		case client := <-h.unregister:
			h.drop(client)
			log.Info().Str("client", client.id).Msg("Event subscriber disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it
					h.drop(client)
				}
			}

		case <-pingTicker.C:
			h.broadcastMessage(Message{Type: TypePing, Data: map[string]int64{"timestamp": time.Now().Unix()}})

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.shutdown()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.shutdown()
	}
	h.mu.Unlock()
}

// Stop shuts the hub down and disconnects all subscribers.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// RunStarted implements agent.Sink.
func (h *Hub) RunStarted(run agent.Run) {
	h.broadcastMessage(Message{Type: TypeRunStarted, Data: runStartedData{
		ID:          run.ID,
		Instruction: run.Instruction,
		StartedAt:   run.StartedAt,
	}})
}

// StepCompleted implements agent.Sink.
func (h *Hub) StepCompleted(run agent.Run, step agent.Step) {
	h.broadcastMessage(Message{Type: TypeStepCompleted, Data: stepCompletedData{
		RunID: run.ID,
		Step:  step,
	}})
}

// RunCompleted implements agent.Sink.
func (h *Hub) RunCompleted(run agent.Run) {
	h.broadcastMessage(Message{Type: TypeRunCompleted, Data: run})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
		id:   fmt.Sprintf("client-%d", time.Now().UnixNano()),
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) broadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn().Str("type", msg.Type).Msg("Event broadcast channel full")
	}
}

// readPump consumes client frames until the connection dies. Subscribers may
// send ping and requestRecent frames; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client", c.id).Msg("Websocket read error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed client frame")
			continue
		}

		switch msg.Type {
		case TypePing:
			c.enqueue(Message{Type: TypePong, Data: map[string]int64{"timestamp": time.Now().Unix()}})
		case "requestRecent":
			if c.hub.recent != nil {
				c.enqueue(Message{Type: TypeRecentRuns, Data: c.hub.recent()})
			}
		default:
			log.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Unhandled client frame")
		}
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with protocol pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush anything already queued
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case msg := <-c.send:
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
				}
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
