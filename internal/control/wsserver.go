// Package control delivers external control signals to the session
// controller: a WebSocket endpoint for enable/disable frames and a watched
// command file for bagcap-ctl commands. Both feed the controller's serialized
// signal path; neither mutates recording state directly.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daqflow/bagcap/internal/diaglog"
)

// Signaler receives queued enable/disable control signals.
type Signaler interface {
	Signal(enable bool)
}

// Frame is one control message on the WebSocket channel.
type Frame struct {
	EnableRecording bool `json:"enable_recording"`
}

// Server exposes the /control WebSocket endpoint.
type Server struct {
	sig      Signaler
	logger   *diaglog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	listener net.Listener
}

// NewServer creates a control server that forwards frames to sig.
func NewServer(sig Signaler, logger *diaglog.Logger) *Server {
	return &Server{
		sig:    sig,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start begins listening on addr. Returns once the listener is bound; the
// accept loop runs on its own goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control listen on %s: %w", addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleControl)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentControlChannel,
				Event:     diaglog.EventWSDisconnect,
				Reason:    "serve",
				Payload:   map[string]interface{}{"error": err.Error()},
			})
		}
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and closes existing ones.
func (s *Server) Shutdown() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// handleControl upgrades the connection and forwards each decoded frame as a
// control signal. Malformed frames close the connection; the daemon's state
// machine is never exposed to partial input.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentControlChannel,
		Event:     diaglog.EventWSConnect,
		Payload:   map[string]interface{}{"remote": conn.RemoteAddr().String()},
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentControlChannel,
				Event:     diaglog.EventWSDisconnect,
				Payload:   map[string]interface{}{"remote": conn.RemoteAddr().String()},
			})
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentControlChannel,
				Event:     diaglog.EventWSFrame,
				Reason:    "malformed",
				Payload:   map[string]interface{}{"error": err.Error()},
			})
			return
		}

		s.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentControlChannel,
			Event:     diaglog.EventWSFrame,
			Payload:   map[string]interface{}{"enable_recording": frame.EnableRecording},
		})
		s.sig.Signal(frame.EnableRecording)
	}
}
