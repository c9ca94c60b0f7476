package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 2 * time.Second

// Hub fans out messages to connected websocket clients. Only the run
// goroutine writes to connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	count      atomic.Int32
	logger     *logrus.Logger
}

func newHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// publish queues a message without blocking the caller; messages are dropped
// when the hub is backed up
func (h *Hub) publish(msg []byte) bool {
	if h.count.Load() == 0 {
		return false
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) clientCount() int {
	return int(h.count.Load())
}

func (h *Hub) run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			_ = client.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			h.logger.Debugf("WebSocket client connected. Total: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Debugf("WebSocket client disconnected. Total: %d", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *websocket.Conn) {
	delete(h.clients, client)
	h.count.Store(int32(len(h.clients)))
	_ = client.Close()
}
