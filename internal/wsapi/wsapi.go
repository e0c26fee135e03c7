// Package wsapi exposes the Relayer Facade's unified event stream
// (spec.md §4.6 subscribe()) over a websocket, standing in for the
// explicitly out-of-scope HTTP/WebSocket façade (spec.md §1) while giving
// the domain stack's gorilla/websocket dependency a concrete home.
//
// Grounded on the teacher's internal/api/server.go route/Server shape
// (ServeMux, Start/Shutdown lifecycle, config.API fields), translated from
// a full REST surface to a single upgrade endpoint since building out the
// REST surface itself is out of scope for this core.
package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fusionswap/relayer/internal/types"
)

// EventSource is satisfied by the Relayer Facade.
type EventSource interface {
	Subscribe() <-chan types.SwapEvent
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves /events, upgrading each connection to a websocket and
// forwarding every SwapEvent from the facade until the client disconnects.
type Server struct {
	addr   string
	source EventSource
	log    *zap.Logger
	http   *http.Server
}

// NewServer constructs a wsapi Server bound to addr (host:port).
func NewServer(addr string, source EventSource, log *zap.Logger) *Server {
	s := &Server{addr: addr, source: source, log: log.Named("wsapi")}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// within a bounded grace period (spec.md §5 "bounded grace period, default
// 5s").
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	events := s.source.Subscribe()
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			return // client gone; stop forwarding to this connection
		}
	}
}
