// Package control provides a Unix socket HTTP server for inspecting and
// poking the running bridge. "mmbridge serve" starts it; the status, cache
// and emit commands talk to it.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/sdk"
	"github.com/kuuji/mmbridge/internal/service"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

// ResolveSocketPath returns the best socket path for the current environment.
//
// On Linux, it checks in order:
//  1. /run/mmbridge/ if it exists (systemd RuntimeDirectory= or root)
//  2. $XDG_RUNTIME_DIR/mmbridge/
//  3. /tmp/mmbridge/
//
// On macOS it uses /var/run/mmbridge/ when present, else /tmp/mmbridge/.
func ResolveSocketPath() string {
	if runtime.GOOS == "darwin" {
		if info, err := os.Stat("/var/run/mmbridge"); err == nil && info.IsDir() {
			return "/var/run/mmbridge/control.sock"
		}
		return "/tmp/mmbridge/control.sock"
	}

	if info, err := os.Stat("/run/mmbridge"); err == nil && info.IsDir() {
		return "/run/mmbridge/control.sock"
	}
	if xdgDir := os.Getenv("XDG_RUNTIME_DIR"); xdgDir != "" {
		return filepath.Join(xdgDir, "mmbridge", "control.sock")
	}
	return "/tmp/mmbridge/control.sock"
}

// Status is the /status response.
type Status struct {
	Service       service.Status       `json:"service"`
	Listen        string               `json:"listen,omitempty"`
	Session       *protocol.HelloFrame `json:"session,omitempty"`
	UptimeSeconds float64              `json:"uptime_seconds"`
}

// FlushResult is the /cache/flush response.
type FlushResult struct {
	Replayed int `json:"replayed"`
}

// Backend is what the control server exposes.
type Backend interface {
	Status(ctx context.Context) Status
	Pending(ctx context.Context) ([]eventcache.Entry, error)
	Flush(ctx context.Context) (int, error)

	// Inject feeds a native broadcast to the bridge as if the SDK raised it.
	Inject(b sdk.Broadcast)
}

// Server is an HTTP server that listens on a Unix domain socket.
type Server struct {
	socketPath string
	backend    Backend
	log        *slog.Logger
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a new control server.
func NewServer(socketPath string, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		backend:    backend,
		log:        logger.With("component", "control"),
	}
}

// Start begins listening on the Unix socket and serving HTTP requests.
// It returns immediately; the server runs in the background.
func (s *Server) Start() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", dir, err)
	}

	// Remove stale socket file from a previous run.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.listener = ln

	// Injecting events is as good as being the SDK: owner only.
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		s.log.Warn("setting socket permissions", "error", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /cache", s.handleCache)
	mux.HandleFunc("POST /cache/flush", s.handleFlush)
	mux.HandleFunc("POST /native", s.handleNative)

	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("control server error", "error", err)
		}
	}()

	s.log.Info("control server started", "socket", s.socketPath)
	return nil
}

// Stop gracefully shuts down the control server and removes the socket file.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("control server shutdown", "error", err)
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing socket file", "error", err)
	}

	s.log.Info("control server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.backend.Status(r.Context()))
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	entries, err := s.backend.Pending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []eventcache.Entry{}
	}
	s.reply(w, entries)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n, err := s.backend.Flush(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.reply(w, FlushResult{Replayed: n})
}

func (s *Server) handleNative(w http.ResponseWriter, r *http.Request) {
	var b sdk.Broadcast
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&b); err != nil {
		http.Error(w, "decoding broadcast: "+err.Error(), http.StatusBadRequest)
		return
	}
	if b.Action == "" {
		http.Error(w, "action is required", http.StatusBadRequest)
		return
	}

	s.log.Info("injecting native event", "action", b.Action)
	s.backend.Inject(b)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}

// Client talks to a running control server.
type Client struct {
	http *http.Client
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{http: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}}
}

// Status fetches the bridge status.
func (c *Client) Status() (*Status, error) {
	var status Status
	if err := c.do(http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Pending lists events cached for a listener that has not attached yet.
func (c *Client) Pending() ([]eventcache.Entry, error) {
	var entries []eventcache.Entry
	if err := c.do(http.MethodGet, "/cache", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Flush replays cached events to the live JS context.
func (c *Client) Flush() (int, error) {
	var res FlushResult
	if err := c.do(http.MethodPost, "/cache/flush", nil, &res); err != nil {
		return 0, err
	}
	return res.Replayed, nil
}

// Inject raises a native broadcast in the bridge.
func (c *Client) Inject(b sdk.Broadcast) error {
	return c.do(http.MethodPost, "/native", b, nil)
}

func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, "http://mmbridge"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to control socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx control response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control server returned %d: %s", e.Code, e.Message)
}
