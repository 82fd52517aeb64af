package jwtqueue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kuuji/mmbridge/internal/looper"
	"github.com/kuuji/mmbridge/internal/sdk"
)

type result struct {
	token string
	err   error
}

type recordingCallback struct {
	name string
	out  *[]string
	res  *result
}

func (r recordingCallback) OnJwt(token string) {
	*r.out = append(*r.out, r.name+"="+token)
	r.res.token = token
}

func (r recordingCallback) OnError(err error) {
	*r.out = append(*r.out, r.name+"!")
	r.res.err = err
}

type counter struct {
	mu   sync.Mutex
	n    int
	fail bool
}

func (c *counter) notify() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("no live JS context")
	}
	c.n++
	return nil
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestQueue_fifoAndSinglePrompt(t *testing.T) {
	t.Parallel()

	c := &counter{}
	q := New(c.notify, looper.Inline{}, nil)

	var order []string
	results := make([]result, 3)
	for i, name := range []string{"r1", "r2", "r3"} {
		q.Request(recordingCallback{name: name, out: &order, res: &results[i]})
	}
	if got := c.count(); got != 1 {
		t.Fatalf("prompts after three requests = %d, want 1", got)
	}
	if q.Len() != 3 || !q.Awaiting() {
		t.Fatalf("Len() = %d, Awaiting() = %v", q.Len(), q.Awaiting())
	}

	// One re-prompt per resolution that leaves requests behind.
	wantPrompts := []int{2, 3, 3}
	for i, token := range []string{"t1", "t2", "t3"} {
		if err := q.ResumeWithJwt(token); err != nil {
			t.Fatalf("ResumeWithJwt(%s) error: %v", token, err)
		}
		if got, want := c.count(), wantPrompts[i]; got != want {
			t.Errorf("prompts after resolving %s = %d, want %d", token, got, want)
		}
	}

	want := []string{"r1=t1", "r2=t2", "r3=t3"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("resolution[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if q.Awaiting() {
		t.Error("Awaiting() = true with an empty queue")
	}

	// A new request after draining is a fresh transition.
	q.Request(recordingCallback{name: "r4", out: &order, res: &result{}})
	if got := c.count(); got != 4 {
		t.Errorf("prompts after new request = %d, want 4", got)
	}
}

func TestQueue_resumeWithError(t *testing.T) {
	t.Parallel()

	q := New(nil, looper.Inline{}, nil)
	var order []string
	var res result
	q.Request(recordingCallback{name: "r1", out: &order, res: &res})

	boom := errors.New("token service down")
	if err := q.ResumeWithError(boom); err != nil {
		t.Fatalf("ResumeWithError() error: %v", err)
	}
	if !errors.Is(res.err, boom) {
		t.Errorf("callback error = %v, want %v", res.err, boom)
	}
	if err := q.ResumeWithJwt("late"); !errors.Is(err, ErrNoPendingRequest) {
		t.Errorf("ResumeWithJwt() on empty queue error = %v, want ErrNoPendingRequest", err)
	}
}

func TestQueue_repromptAfterFailedNotify(t *testing.T) {
	t.Parallel()

	c := &counter{fail: true}
	q := New(c.notify, looper.Inline{}, nil)

	var order []string
	q.Request(recordingCallback{name: "r1", out: &order, res: &result{}})
	if q.Awaiting() {
		t.Fatal("Awaiting() = true after the prompt failed")
	}

	// Reprompt is a no-op while nothing could listen.
	q.Reprompt()
	if got := c.count(); got != 0 {
		t.Fatalf("prompts while failing = %d, want 0", got)
	}

	c.mu.Lock()
	c.fail = false
	c.mu.Unlock()
	q.Reprompt()
	q.Reprompt()
	if got := c.count(); got != 1 {
		t.Errorf("prompts after context attached = %d, want 1", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want the request still queued", q.Len())
	}
}

func TestQueue_resolvesOnLooper(t *testing.T) {
	t.Parallel()

	l := looper.New(nil)
	defer l.Close()
	q := New(nil, l, nil)

	done := make(chan string, 1)
	q.Request(chanCallback(done))
	if err := q.ResumeWithJwt("tok"); err != nil {
		t.Fatalf("ResumeWithJwt() error: %v", err)
	}

	select {
	case got := <-done:
		if got != "tok" {
			t.Errorf("token = %q, want tok", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran on the looper")
	}
}

type chanCallback chan string

func (c chanCallback) OnJwt(token string) { c <- token }
func (c chanCallback) OnError(error)      { c <- "" }

func TestQueue_installsAsProvider(t *testing.T) {
	t.Parallel()

	q := New(nil, looper.Inline{}, nil)
	var provider sdk.JwtProvider = q.Request

	done := make(chan string, 1)
	provider(chanCallback(done))
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	// Expired and malformed tokens are passed through untouched.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("secret-key-for-tests-only-000000"))
	if err != nil {
		t.Fatalf("SignedString() error: %v", err)
	}
	if err := q.ResumeWithJwt(signed); err != nil {
		t.Fatalf("ResumeWithJwt() error: %v", err)
	}
	if got := <-done; got != signed {
		t.Errorf("token altered in transit")
	}

	provider(chanCallback(done))
	if err := q.ResumeWithJwt("not-a-jwt"); err != nil {
		t.Fatalf("ResumeWithJwt() error: %v", err)
	}
	if got := <-done; got != "not-a-jwt" {
		t.Errorf("token = %q, want not-a-jwt", got)
	}
}
