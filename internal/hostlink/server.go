// Package hostlink connects a JS runtime to the bridge over WebSocket. The
// runtime is the client; while its session is open it is the live JS
// context events are emitted to.
package hostlink

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kuuji/mmbridge/internal/eventcache"
	"github.com/kuuji/mmbridge/internal/module"
	"github.com/kuuji/mmbridge/pkg/protocol"
)

const (
	helloTimeout = 10 * time.Second

	// Inbox pages and findAll results outgrow the 32KiB default.
	readLimit = 4 << 20
)

// Server accepts host-link sessions. At most one session is open; a new
// session replaces the previous one.
type Server struct {
	table   *module.Table
	promise *module.Promise
	token   string
	log     *slog.Logger

	mu   sync.Mutex
	sess *session

	ctx    context.Context
	cancel context.CancelFunc
}

type session struct {
	conn  *websocket.Conn
	hello protocol.HelloFrame
}

var _ eventcache.Emitter = (*Server)(nil)

// NewServer creates a server. Bind a table before serving. A non-empty
// token requires clients to send it as a bearer token.
func NewServer(token string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		token:  token,
		log:    logger.With("component", "hostlink"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Bind sets the method table calls are dispatched to. The server is the
// service's emitter, so it exists before the table does.
func (s *Server) Bind(t *module.Table) {
	s.mu.Lock()
	s.table = t
	s.promise = module.NewPromise(t)
	s.mu.Unlock()
}

// Close ends the open session and stops accepting calls.
func (s *Server) Close() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess != nil {
		sess.conn.Close(websocket.StatusGoingAway, "bridge shutting down") //nolint:errcheck
	}
	s.cancel()
}

// Session returns the hello frame of the open session.
func (s *Server) Session() (protocol.HelloFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return protocol.HelloFrame{}, false
	}
	return s.sess.hello, true
}

// Live reports whether a session is open.
func (s *Server) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess != nil
}

// Emit sends an event frame to the open session.
func (s *Server) Emit(ctx context.Context, name string, data json.RawMessage) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return eventcache.ErrNoContext
	}

	if err := s.write(ctx, sess, &protocol.EventFrame{Name: name, Data: data}); err != nil {
		return fmt.Errorf("emitting %s: %w", name, err)
	}
	return nil
}

// ServeHTTP upgrades the request and serves the session until either side
// closes it or a newer session replaces it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	promise := s.promise
	s.mu.Unlock()
	if promise == nil {
		http.Error(w, "bridge not ready", http.StatusServiceUnavailable)
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("websocket accept failed", "error", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
	c.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	hello, err := s.readHello(ctx, c)
	if err != nil {
		s.log.Warn("rejecting session", "remote", r.RemoteAddr, "error", err)
		c.Close(websocket.StatusPolicyViolation, err.Error()) //nolint:errcheck
		return
	}

	sess := &session{conn: c, hello: *hello}
	s.open(sess)
	defer s.release(sess)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				s.log.Info("session closed", "client", hello.Client)
			} else {
				s.log.Warn("session read failed", "client", hello.Client, "error", err)
			}
			return
		}

		f, err := protocol.Unmarshal(data)
		if err != nil {
			s.log.Warn("ignoring malformed frame", "error", err)
			continue
		}
		call, ok := f.(*protocol.CallFrame)
		if !ok {
			s.log.Warn("ignoring unexpected frame", "type", f.FrameType())
			continue
		}
		if !s.current(sess) {
			s.log.Debug("dropping call from replaced session", "client", hello.Client, "method", call.Method)
			continue
		}

		// Calls run concurrently: a storage find answer arrives as a call
		// while the call that triggered the find is still waiting.
		go func() {
			reply := promise.Resolve(ctx, call)
			if err := s.write(ctx, sess, reply); err != nil {
				s.log.Warn("writing reply failed", "method", call.Method, "error", err)
			}
		}()
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	want := "Bearer " + s.token
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) readHello(ctx context.Context, c *websocket.Conn) (*protocol.HelloFrame, error) {
	readCtx, cancel := context.WithTimeout(ctx, helloTimeout)
	defer cancel()

	_, data, err := c.Read(readCtx)
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	f, err := protocol.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding hello: %w", err)
	}
	hello, ok := f.(*protocol.HelloFrame)
	if !ok {
		return nil, fmt.Errorf("first frame must be hello, got %q", f.FrameType())
	}
	return hello, nil
}

// open installs sess as the live context, closing any previous session.
// Listeners belong to the session that added them, so a replacement starts
// with none and events stay cached until it calls addListener.
func (s *Server) open(sess *session) {
	s.mu.Lock()
	replacing := s.sess != nil
	table := s.table
	s.mu.Unlock()

	if replacing {
		table.Detach()
	}

	s.mu.Lock()
	prev := s.sess
	s.sess = sess
	s.mu.Unlock()

	if prev != nil {
		s.log.Info("replacing session", "previous", prev.hello.Client, "client", sess.hello.Client)
		prev.conn.Close(websocket.StatusGoingAway, "replaced by a newer session") //nolint:errcheck
	}
	s.log.Info("session opened", "client", sess.hello.Client, "platform", sess.hello.Platform)
	table.Attach()
}

func (s *Server) current(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess == sess
}

// release clears sess if it is still the live context.
func (s *Server) release(sess *session) {
	s.mu.Lock()
	current := s.sess == sess
	if current {
		s.sess = nil
	}
	table := s.table
	s.mu.Unlock()

	if current {
		table.Detach()
	}
}

func (s *Server) write(ctx context.Context, sess *session, f protocol.Frame) error {
	data, err := protocol.Marshal(f)
	if err != nil {
		return err
	}
	return sess.conn.Write(ctx, websocket.MessageText, data)
}
