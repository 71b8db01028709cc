// Package api — server.go
//
// Unix domain socket server exposing the Engine's public operations as
// newline-delimited JSON (§4.J, §6).
//
// Protocol: one JSON request, one JSON response, per connection.
// Socket path: /run/thermopilot/engine.sock (configurable).
// Permissions: 0600, owned by the user running thermopilotd.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"snapshot"}
//	  -> Response: {"ok":true,"snapshot":{...}}
//
//	{"cmd":"active_overrides"}
//	  -> Response: {"ok":true,"overrides":[{...}]}
//
//	{"cmd":"statistics"}
//	  -> Response: {"ok":true,"stats":{...}}
//
//	{"cmd":"start"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"stop"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"record_user_change","control":"REFRESH_RATE_HZ","value":"90","scenario":"manual"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"clear_cooling","control":"REFRESH_RATE_HZ"}
//	  -> Response: {"ok":true}
//
//	{"cmd":"force_gpu_mode","mode":"On","reason":"gaming session"}
//	  -> Response: {"ok":true,"executed":1,"failed":0}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes.
//   - Connection timeout: 10s read, 10s write.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/snapshot"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// Request is the JSON structure for operator socket commands.
type Request struct {
	Cmd      string `json:"cmd"`
	Control  string `json:"control,omitempty"`
	Value    string `json:"value,omitempty"`
	Scenario string `json:"scenario,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Response is the JSON structure for operator socket responses.
type Response struct {
	OK        bool               `json:"ok"`
	Error     string             `json:"error,omitempty"`
	Snapshot  *snapshot.Snapshot `json:"snapshot,omitempty"`
	Overrides []OverrideRecord   `json:"overrides,omitempty"`
	Stats     *EngineStats       `json:"stats,omitempty"`
	Executed  int                `json:"executed,omitempty"`
	Failed    int                `json:"failed,omitempty"`
}

// OverrideRecord is the JSON-facing projection of an override.Record.
type OverrideRecord struct {
	Control    string    `json:"control"`
	Value      string    `json:"value"`
	Scenario   string    `json:"scenario"`
	RecordedAt time.Time `json:"recorded_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	engine     *Engine
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer creates an operator Server over the given Engine.
func NewServer(socketPath string, engine *Engine, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		engine:     engine,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("api: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("api: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("api: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("api: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("api: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("api: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// handleConn handles a single operator connection: one request, one
// response.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("api: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(ctx, req)
	s.writeResponse(conn, resp)
}

// dispatch routes a request to the appropriate Engine operation.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Cmd {
	case "snapshot":
		snap := s.engine.Snapshot()
		return Response{OK: true, Snapshot: &snap}
	case "active_overrides":
		recs := s.engine.ActiveOverrides()
		out := make([]OverrideRecord, len(recs))
		for i, r := range recs {
			out[i] = OverrideRecord{
				Control:    r.Control,
				Value:      r.Value,
				Scenario:   r.Scenario,
				RecordedAt: r.RecordedAt,
				ExpiresAt:  r.ExpiresAt,
			}
		}
		return Response{OK: true, Overrides: out}
	case "statistics":
		stats := s.engine.Statistics()
		return Response{OK: true, Stats: &stats}
	case "start":
		s.engine.Start(ctx)
		return Response{OK: true}
	case "stop":
		s.engine.Stop()
		return Response{OK: true}
	case "record_user_change":
		if req.Control == "" {
			return Response{OK: false, Error: "control required for record_user_change"}
		}
		if err := s.engine.RecordUserChange(req.Control, req.Value, req.Scenario); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "clear_cooling":
		if req.Control == "" {
			return Response{OK: false, Error: "control required for clear_cooling"}
		}
		if err := s.engine.ClearCooling(req.Control); err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true}
	case "force_gpu_mode":
		if req.Mode == "" {
			return Response{OK: false, Error: "mode required for force_gpu_mode"}
		}
		cycle, err := s.engine.ForceGPUMode(ctx, req.Mode, req.Reason)
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		return Response{OK: true, Executed: cycle.Executed, Failed: cycle.Failed}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
