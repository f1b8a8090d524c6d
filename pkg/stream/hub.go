package stream

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// clientBuffer is how many lines a slow client may fall behind before lines
// are dropped for it.
const clientBuffer = 64

// Hub fans formatted log lines out to connected stream clients.
// It is installed as a logrus hook.
type Hub struct {
	formatter logrus.Formatter

	mu      sync.RWMutex
	clients map[string]chan string
}

// NewHub creates a hub with no clients
func NewHub() *Hub {
	return &Hub{
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
		clients:   make(map[string]chan string),
	}
}

// Levels implements logrus.Hook
func (h *Hub) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *Hub) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.Broadcast(strings.TrimRight(string(line), "\n"))
	return nil
}

// Broadcast sends line to every client, skipping clients whose buffer is full
func (h *Hub) Broadcast(line string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe registers a new client
func (h *Hub) Subscribe() (string, <-chan string) {
	id := uuid.New().String()
	ch := make(chan string, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a client. Its channel is left open.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
