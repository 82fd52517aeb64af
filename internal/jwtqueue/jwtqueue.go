// Package jwtqueue correlates native requests for a chat JWT with tokens
// produced asynchronously by the JS side.
//
// Native chat code may ask for a token several times in a row (reconnects,
// configuration changes). Requests queue up in arrival order and JS is
// prompted once per idle-to-waiting transition; each supplied token or
// error resolves the oldest request, and JS is prompted again while
// requests remain.
package jwtqueue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kuuji/mmbridge/internal/looper"
	"github.com/kuuji/mmbridge/internal/sdk"
)

// ErrNoPendingRequest is returned when JS answers with nothing queued.
var ErrNoPendingRequest = errors.New("no pending JWT request")

// Notifier prompts JS for a token. It fails when no JS context is live.
type Notifier func() error

// Queue is a FIFO of pending JWT callbacks.
type Queue struct {
	notify Notifier
	poster looper.Poster
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	pending  []sdk.JwtCallback
	awaiting bool
}

// New returns a Queue prompting JS through notify and resolving callbacks
// on poster.
func New(notify Notifier, poster looper.Poster, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if poster == nil {
		poster = looper.Inline{}
	}
	return &Queue{
		notify: notify,
		poster: poster,
		log:    logger.With("component", "jwtqueue"),
		now:    time.Now,
	}
}

// Request enqueues cb. Its signature matches sdk.JwtProvider, so
// q.Request can be installed on the chat SDK directly.
func (q *Queue) Request(cb sdk.JwtCallback) {
	q.mu.Lock()
	q.pending = append(q.pending, cb)
	prompt := !q.awaiting
	q.awaiting = true
	depth := len(q.pending)
	q.mu.Unlock()

	q.log.Debug("JWT requested", "queued", depth)
	if prompt {
		q.prompt()
	}
}

// ResumeWithJwt resolves the oldest request with token.
func (q *Queue) ResumeWithJwt(token string) error {
	cb, more, err := q.pop()
	if err != nil {
		return err
	}
	q.inspect(token)
	q.poster.Post(func() { cb.OnJwt(token) })
	if more {
		q.prompt()
	}
	return nil
}

// ResumeWithError rejects the oldest request with err.
func (q *Queue) ResumeWithError(err error) error {
	cb, more, popErr := q.pop()
	if popErr != nil {
		return popErr
	}
	q.log.Warn("JWT provider failed", "error", err)
	q.poster.Post(func() { cb.OnError(err) })
	if more {
		q.prompt()
	}
	return nil
}

// Reprompt asks JS again for the head request if an earlier prompt could
// not be delivered. It is called when a JS context attaches.
func (q *Queue) Reprompt() {
	q.mu.Lock()
	prompt := len(q.pending) > 0 && !q.awaiting
	if prompt {
		q.awaiting = true
	}
	q.mu.Unlock()

	if prompt {
		q.prompt()
	}
}

// Len reports how many requests are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Awaiting reports whether JS has been prompted and not yet answered.
func (q *Queue) Awaiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.awaiting
}

// pop removes the head and reports whether requests remain. The awaiting
// flag stays raised while they do.
func (q *Queue) pop() (sdk.JwtCallback, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false, ErrNoPendingRequest
	}
	cb := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	more := len(q.pending) > 0
	q.awaiting = more
	return cb, more, nil
}

func (q *Queue) prompt() {
	if q.notify == nil {
		return
	}
	if err := q.notify(); err != nil {
		q.log.Warn("could not prompt JS for a JWT, will retry when a context attaches", "error", err)
		q.mu.Lock()
		q.awaiting = false
		q.mu.Unlock()
	}
}

// inspect logs what the token claims without verifying it; validation is
// the chat backend's job.
func (q *Queue) inspect(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		q.log.Warn("supplied JWT is malformed, passing it through", "error", err)
		return
	}
	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()
	if exp != nil && exp.Before(q.now()) {
		q.log.Warn("supplied JWT is already expired", "sub", sub, "exp", exp.Time)
		return
	}
	q.log.Debug("JWT supplied", "sub", sub)
}
