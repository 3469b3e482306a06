package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/SIA-PC-Consulting/ocpp-virtual-charge-point/common"
)

// Server is the local WebSocket front door onto the Bridge. It accepts
// {action, messageId, payload} JSON commands and answers each with a
// success or failure acknowledgement. Used exclusively by local test
// tooling, never by the CSMS.
type Server struct {
	bridge   *Bridge
	addr     string
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

func NewServer(bridge *Bridge, port int, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		bridge: bridge,
		addr:   fmt.Sprintf("127.0.0.1:%d", port),
		log:    logger.WithField("component", "admin"),
	}
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin: cannot listen on %v: %w", s.addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnection)
	httpSrv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = httpSrv
	s.mu.Unlock()

	s.log.Infof("admin channel listening on ws://%v", listener.Addr())
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.log.WithError(serveErr).Error("admin listener stopped")
		}
	}()
	return nil
}

// Addr returns the bound listener address, usable once Start returned.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.mu.Lock()
	httpSrv := s.httpSrv
	s.mu.Unlock()
	if httpSrv != nil {
		_ = httpSrv.Close()
	}
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("admin upgrade failed")
		return
	}
	defer conn.Close()
	s.log.WithField("remote", conn.RemoteAddr().String()).Info("admin client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.WithField("remote", conn.RemoteAddr().String()).Info("admin client disconnected")
			return
		}
		var cmd common.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.write(conn, failure("", common.ErrCodeInvalidCommand, "command is not valid JSON", nil))
			continue
		}
		s.write(conn, s.bridge.Execute(context.Background(), cmd))
	}
}

func (s *Server) write(conn *websocket.Conn, resp common.Response) {
	if err := conn.WriteJSON(resp); err != nil {
		s.log.WithError(err).Warn("cannot write admin response")
	}
}
