package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 10 * time.Second

// Handlers serves the relay endpoints
type Handlers struct {
	hub      *Hub
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewHandlers creates the relay handlers for hub
func NewHandlers(hub *Hub, log logrus.FieldLogger) *Handlers {
	return &Handlers{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Health reports liveness and the number of stream clients
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.Clients(),
	})
}

// Stream relays log lines to a websocket client as text messages
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, lines := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	log := h.log.WithField("client", id)
	log.Debug("Stream client connected")
	defer log.Debug("Stream client disconnected")

	// the read loop only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case line := <-lines:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}

// NewRouter wires the relay routes with CORS
func NewRouter(hub *Hub, log logrus.FieldLogger) http.Handler {
	handlers := NewHandlers(hub, log)

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health).Methods("GET")
	router.HandleFunc("/stream", handlers.Stream).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(router)
}

// NewServer creates the HTTP server for the relay. WriteTimeout stays unset
// because stream connections are long lived.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
