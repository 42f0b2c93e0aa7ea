// Package live keeps a filter input and its expensive derived results apart.
//
// The input is updated synchronously. Results are recomputed in the
// background and applied latest-wins: each request carries a sequence
// number, a newer request cancels the one in flight, and a result is applied
// only if it answers the latest request.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/notes/internal/search"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("live: session closed")

// ComputeFunc derives the results for an input. It should return promptly
// once ctx is cancelled.
type ComputeFunc func(ctx context.Context, input string) ([]search.Result, error)

// Result is an applied recompute.
type Result struct {
	Seq     uint64          `json:"seq"`
	Input   string          `json:"input"`
	Items   []search.Result `json:"-"`
	Applied time.Time       `json:"applied"`
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce delays each recompute by d. Requests arriving within d of
// each other collapse into one.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithOnApply registers a callback run after each applied result, in
// sequence order.
func WithOnApply(fn func(Result)) Option {
	return func(s *Session) { s.onApply = append(s.onApply, fn) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session tracks one filter input and its latest applied results.
type Session struct {
	compute  ComputeFunc
	debounce time.Duration
	onApply  []func(Result)
	logger   *slog.Logger

	applyMu sync.Mutex

	mu      sync.Mutex
	input   string
	seq     uint64
	applied Result
	cancel  context.CancelFunc
	notify  chan struct{}
	closed  bool

	wg sync.WaitGroup
}

// NewSession creates a Session. No result is computed until SetInput or Refresh.
func NewSession(compute ComputeFunc, opts ...Option) *Session {
	s := &Session{
		compute: compute,
		logger:  slog.Default(),
		notify:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInput stores input immediately, supersedes any pending recompute and
// schedules a new one. It returns the request's sequence number.
func (s *Session) SetInput(input string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.seq
	}
	s.input = input
	return s.scheduleLocked()
}

// Refresh recomputes the current input, e.g. after the notes changed.
func (s *Session) Refresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.seq
	}
	return s.scheduleLocked()
}

// Input returns the latest input.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Seq returns the latest requested sequence number.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Result returns the last applied result. Its Seq is 0 before the first apply.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Wait blocks until a result with sequence seq or newer has been applied.
func (s *Session) Wait(ctx context.Context, seq uint64) (Result, error) {
	for {
		s.mu.Lock()
		if s.applied.Seq >= seq && s.applied.Seq > 0 {
			r := s.applied
			s.mu.Unlock()
			return r, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Result{}, ErrClosed
		}
		ch := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels pending work and waits for background recomputes to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	close(s.notify)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) scheduleLocked() uint64 {
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.recompute(ctx, s.seq, s.input)
	return s.seq
}

func (s *Session) recompute(ctx context.Context, seq uint64, input string) {
	defer s.wg.Done()

	if s.debounce > 0 {
		t := time.NewTimer(s.debounce)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	items, err := s.compute(ctx, input)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("live: recompute failed",
			slog.Uint64("seq", seq), slog.String("input", input), slog.String("error", err.Error()))
		return
	}
	s.apply(Result{Seq: seq, Input: input, Items: items, Applied: time.Now()})
}

// apply installs r unless a newer result is applied or a newer request is pending.
func (s *Session) apply(r Result) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || r.Seq <= s.applied.Seq || r.Seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("live: dropped stale result", slog.Uint64("seq", r.Seq))
		return false
	}
	s.applied = r
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()

	for _, fn := range s.onApply {
		fn(r)
	}
	return true
}
