// Package monitor streams frame timer statistics to websocket clients.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/valerio/go-framepace/framepace/stats"
)

const writeTimeout = time.Second

// StatsSource is satisfied by *timing.FrameTimer.
type StatsSource interface {
	Stats() stats.Snapshot
}

// Message is the JSON document pushed to clients.
type Message struct {
	Type  string         `json:"type"`
	Seq   uint64         `json:"seq"`
	Stats stats.Snapshot `json:"stats"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// goAway sends a going-away close frame and closes the connection.
func (c *client) goAway() {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(writeTimeout))
	c.mu.Unlock()
	c.conn.Close()
}

// Server pushes a stats snapshot to every connected client once per interval.
type Server struct {
	source   StatsSource
	interval time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	seq     uint64
	closed  bool
}

func New(source StatsSource, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Server{
		source:   source,
		interval: interval,
		log:      logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  map[*client]bool{},
	}
}

// Handler serves the websocket stream on /ticks and a one-shot JSON
// snapshot on /stats.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ticks", s.HandleTicksWS)
	mux.HandleFunc("/stats", s.HandleStats)
	return mux
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Stats()); err != nil {
		s.log.Warn("Failed to write stats", "error", err)
	}
}

func (s *Server) HandleTicksWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.goAway()
		return
	}
	s.clients[c] = true
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug("Monitor client connected", "remote", r.RemoteAddr, "clients", n)

	if msg, err := s.message(); err == nil {
		if err := c.send(msg); err != nil {
			s.drop(c)
			return
		}
	}

	// Reads only detect the close; clients are not expected to send anything.
	go func() {
		defer s.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run broadcasts until ctx is done, then disconnects all clients.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

// ListenAndServe serves Handler on addr and broadcasts until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("Monitor listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) message() ([]byte, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	return json.Marshal(Message{Type: "stats", Seq: seq, Stats: s.source.Stats()})
}

func (s *Server) broadcast() {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg, err := s.message()
	if err != nil {
		s.log.Error("Failed to encode stats", "error", err)
		return
	}
	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.log.Debug("Dropping monitor client", "error", err)
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	s.closed = true
	clients := s.clients
	s.clients = map[*client]bool{}
	s.mu.Unlock()

	for c := range clients {
		c.goAway()
	}
}
