// Package observer serves a read-only view of a running simulation to a
// local viewer over HTTP and websocket.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

const (
	writeTimeout    = 5 * time.Second
	readTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Source is the simulation state the observer reads from.
type Source interface {
	Snapshot() world.Snapshot
	Subscribe(ch chan<- world.Snapshot)
	Unsubscribe(ch chan<- world.Snapshot)
}

// Server exposes GET /state and GET /ws. Only loopback clients are served.
type Server struct {
	logger   *zap.Logger
	addr     string
	src      Source
	upgrader websocket.Upgrader
	srv      *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer returns a stopped observer bound to addr once started.
//
// Precondition: src non-nil. A nil logger disables logging.
func NewServer(addr string, src Source, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		addr:   addr,
		src:    src,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the observer routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Addr returns the bound listener address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start implements server.Service. It blocks until Stop is called.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("observer listening", zap.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop implements server.Service.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("observer shutdown", zap.Error(err))
	}
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(s.src.Snapshot()); err != nil {
		s.logger.Debug("writing state", zap.Error(err))
	}
}

// handleWS pushes one snapshot frame per tick. A client that cannot keep up
// misses frames instead of slowing the simulation.
func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	frames := make(chan world.Snapshot, 1)
	s.src.Subscribe(frames)
	defer s.src.Unsubscribe(frames)

	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Info("observer client connected")
	defer logger.Info("observer client disconnected")

	// Reader: the client sends nothing, but reading handles close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case snap := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug("observer write failed", zap.Error(err))
				return
			}
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
