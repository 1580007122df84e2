package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	readTimeout   = 5 * time.Second
	actionTimeout = 60 * time.Second
)

// Controller is the lifecycle surface driven through the socket.
type Controller interface {
	Start(ctx context.Context) bool
	Stop()
	Status() Status
	Notify(ctx context.Context, text string) (int, error)
}

// Server listens on a Unix domain socket and applies control requests.
type Server struct {
	socketPath string
	ctl        Controller
	listener   net.Listener
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewServer creates a new socket server.
func NewServer(socketPath string, ctl Controller, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		ctl:        ctl,
		logger:     logger,
	}
}

// Start begins listening. It cleans up stale sockets, creates the directory
// with 0700 permissions, and sets the socket to 0600.
func (s *Server) Start(ctx context.Context) error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Clean up stale socket.
	if _, err := os.Stat(s.socketPath); err == nil {
		// Check if something is listening.
		conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return fmt.Errorf("another instance is already listening on %s", s.socketPath)
		}
		s.logger.Info("removing stale socket", "path", s.socketPath)
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln
	s.logger.Info("listening", "path", s.socketPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	return nil
}

// Shutdown gracefully stops the server and waits for in-flight connections.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Error("accept error", "error", err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	data, err := io.ReadAll(io.LimitReader(conn, MaxPayloadBytes+1))
	if err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "read error"})
		return
	}

	if len(data) > MaxPayloadBytes {
		s.writeResponse(conn, Response{OK: false, Error: fmt.Sprintf("payload exceeds %d byte limit", MaxPayloadBytes)})
		return
	}

	req, err := ValidateRequest(data)
	if err != nil {
		s.logger.Warn("invalid request", "error", err)
		s.writeResponse(conn, Response{OK: false, Error: err.Error()})
		return
	}

	// Start validates the credential over the network, so the action
	// gets a longer budget than the read.
	conn.SetWriteDeadline(time.Now().Add(actionTimeout))
	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	id := uuid.New().String()
	resp := s.apply(actx, req)
	resp.ID = id
	s.logger.Info("control request", "id", id, "action", req.Action, "ok", resp.OK)
	s.writeResponse(conn, resp)
}

func (s *Server) apply(ctx context.Context, req *Request) Response {
	switch req.Action {
	case ActionStatus:
		return s.statusResponse(true, "")
	case ActionStart:
		if s.ctl.Start(ctx) || s.ctl.Status().State == Running {
			return s.statusResponse(true, "")
		}
		return s.statusResponse(false, "start failed, see the agent log")
	case ActionStop:
		s.ctl.Stop()
		return s.statusResponse(true, "")
	case ActionNotify:
		return s.notify(ctx, req)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown action %q", req.Action)}
	}
}

func (s *Server) notify(ctx context.Context, req *Request) Response {
	payload, err := ParseNotifyPayload(req.Payload)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}

	sent, err := s.ctl.Notify(ctx, payload.Text)
	resp := s.statusResponse(err == nil, "")
	resp.Sent = sent
	if err != nil {
		s.logger.Error("notify failed", "source", payload.Source, "sent", sent, "error", err)
		resp.Error = "delivery failed"
		if errors.Is(err, ErrNotRunning) {
			resp.Error = err.Error()
		}
		return resp
	}
	s.logger.Info("notification sent", "source", payload.Source, "sent", sent)
	return resp
}

func (s *Server) statusResponse(ok bool, errMsg string) Response {
	st := s.ctl.Status()
	resp := Response{
		OK:      ok,
		Error:   errMsg,
		Running: st.State == Running,
		Users:   st.AuthorizedUsers,
	}
	if !st.Since.IsZero() {
		resp.Since = st.Since.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	json.NewEncoder(conn).Encode(resp)
}
