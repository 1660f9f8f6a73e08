package network

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
	readLimit    = 4096
)

// Hub streams mesh updates to websocket viewers. Every new client receives
// the hello and a snapshot before any broadcast. Both are produced per
// connection.
type Hub struct {
	logger   *log.Logger
	hello    func() Hello
	snapshot func() Snapshot
	upgrader websocket.Upgrader
	seq      atomic.Uint64

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewHub(hello func() Hello, snapshot func() Snapshot, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Hub{
		logger:   logger,
		hello:    hello,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	if err := h.register(c); err != nil {
		h.logger.Printf("client %s: %v", r.RemoteAddr, err)
		_ = conn.Close()
		return
	}
	h.logger.Printf("client %s connected", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
	h.logger.Printf("client %s disconnected", r.RemoteAddr)
}

// register queues the greeting and snapshot and adds the client in one step
// so no broadcast can slip in between.
func (h *Hub) register(c *client) error {
	hello, err := h.prepare(MessageHello, h.hello())
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("hub closed")
	}
	var snap Snapshot
	if h.snapshot != nil {
		snap = h.snapshot()
	}
	data, err := h.prepare(MessageSnapshot, snap)
	if err != nil {
		return err
	}
	c.send <- hello
	c.send <- data
	h.clients[c] = struct{}{}
	return nil
}

// Broadcast sends one message to every client. Clients whose send buffer is
// full are disconnected rather than allowed to stall the stream.
func (h *Hub) Broadcast(msgType MessageType, payload any) error {
	data, err := h.prepare(msgType, payload)
	if err != nil {
		return err
	}
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.logger.Printf("dropping slow client %s", c.conn.RemoteAddr())
		h.remove(c)
	}
	return nil
}

func (h *Hub) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return Encode(Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       h.seq.Add(1),
		Payload:   raw,
	})
}

func (h *Hub) writeLoop(c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards client traffic; it only exists to observe the close.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(readLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}
