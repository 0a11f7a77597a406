// Package hub fans run events out to WebSocket watchers of a thread.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"goa.design/clue/log"
)

// Connection represents a single watcher connection.
type Connection struct {
	ID       string
	ThreadID string
	Conn     *websocket.Conn
	Send     chan []byte
	mu       sync.Mutex
}

// Hub manages watcher connections grouped by thread.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// threads maps thread_id to set of connection IDs
	threads map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *ThreadMessage

	bufferSize int
	done       chan struct{}
	mu         sync.RWMutex
}

// ThreadMessage is used to broadcast a message to a thread's watchers.
type ThreadMessage struct {
	ThreadID string
	Data     []byte
}

// New creates a new Hub. bufferSize is the per-connection send buffer.
func New(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		connections: make(map[string]*Connection),
		threads:     make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *ThreadMessage, bufferSize),
		bufferSize:  bufferSize,
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.threads[conn.ThreadID] == nil {
				h.threads[conn.ThreadID] = make(map[string]bool)
			}
			h.threads[conn.ThreadID][conn.ID] = true
			h.mu.Unlock()
			log.Debugf(ctx, "watcher registered: %s (thread: %s)", conn.ID, conn.ThreadID)

		case conn := <-h.unregister:
			h.remove(conn)
			log.Debugf(ctx, "watcher unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			var slow []*Connection
			h.mu.RLock()
			for connID := range h.threads[msg.ThreadID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range slow {
				log.Infof(ctx, "watcher %s buffer full, dropping", conn.ID)
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.threads[conn.ThreadID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.threads, conn.ThreadID)
		}
	}
	close(conn.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.threads = make(map[string]map[string]bool)
}

// NewConnection creates a connection watching threadID.
func (h *Hub) NewConnection(ws *websocket.Conn, threadID string) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		ThreadID: threadID,
		Conn:     ws,
		Send:     make(chan []byte, h.bufferSize),
	}
}

// Register registers a connection with the hub. After the hub stopped the
// connection's Send channel is closed right away.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues data for every watcher of the thread. It never blocks:
// when the hub is saturated the message is dropped and false is returned.
func (h *Hub) Broadcast(threadID string, data []byte) bool {
	select {
	case h.broadcast <- &ThreadMessage{ThreadID: threadID, Data: data}:
		return true
	default:
		return false
	}
}

// BroadcastJSON marshals v and broadcasts it to the thread.
func (h *Hub) BroadcastJSON(threadID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !h.Broadcast(threadID, data) {
		return ErrHubFull
	}
	return nil
}

// HasWatchers checks if a thread has any watchers.
func (h *Hub) HasWatchers(threadID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads[threadID]) > 0
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
