package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schmackofatz/recipes/internal/eventstream"
	"github.com/schmackofatz/recipes/internal/metrics"
	"github.com/schmackofatz/recipes/internal/prompt"
)

// State of a relay session.
type State int32

const (
	Opening State = iota
	Streaming
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool { return s >= Completed }

// Session is a single upstream stream being relayed to one caller.
type Session struct {
	ID       string
	Language prompt.Language

	ctx    context.Context
	cancel context.CancelFunc
	out    chan string
	done   chan struct{}
	start  time.Time

	state     atomic.Int32
	delivered atomic.Int64

	mu  sync.Mutex
	err error
}

func newSession(ctx context.Context, cancel context.CancelFunc, lang prompt.Language) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Language: lang,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan string),
		done:     make(chan struct{}),
		start:    time.Now(),
	}
}

// Fragments yields fragment text in upstream order. The channel is unbuffered
// and is closed when the session reaches a terminal state.
func (s *Session) Fragments() <-chan string { return s.out }

// Done is closed once the session is terminal and the upstream is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State reports the current state.
func (s *Session) State() State { return State(s.state.Load()) }

// Delivered reports how many fragments the caller has received.
func (s *Session) Delivered() int64 { return s.delivered.Load() }

// Err returns the terminal error: nil when completed, ErrCancelled when the
// caller went away, otherwise the failure. It is nil while the session runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close withdraws the caller's interest and waits for the session to end.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) finish(st State, err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.state.Store(int32(st))
}

func (s *Session) run(body io.ReadCloser, idle time.Duration, log zerolog.Logger) {
	var closeOnce sync.Once
	closeUpstream := func() {
		closeOnce.Do(func() {
			if err := body.Close(); err != nil {
				log.Debug().Err(err).Msg("upstream close")
			}
		})
	}
	stopAfter := context.AfterFunc(s.ctx, closeUpstream)
	watch := &idleWatch{d: idle, onFire: closeUpstream}

	st, err := s.pump(body, watch)

	stopAfter()
	watch.disarm()
	closeUpstream()
	s.finish(st, err)
	s.cancel()
	close(s.out)

	dur := time.Since(s.start)
	n := s.Delivered()
	metrics.SessionFinished(s.Language.String(), st.String(), n, dur)
	ev := log.Info()
	if st == Failed {
		ev = log.Warn().Err(err)
	}
	ev.Str("outcome", st.String()).Int64("fragments", n).Dur("duration", dur).Msg("session finished")
	close(s.done)
}

// pump reads upstream lines until a terminal state is reached. At most one
// line is read ahead of the consumer: the next read starts only after the
// previous fragment was taken from the handoff channel.
func (s *Session) pump(body io.Reader, watch *idleWatch) (State, error) {
	dec := eventstream.NewDecoder()
	sc := eventstream.NewLineScanner(body)
	for {
		if s.ctx.Err() != nil {
			return Cancelled, ErrCancelled
		}
		watch.arm()
		more := sc.Scan()
		watch.disarm()
		if !more {
			err := sc.Err()
			switch {
			case s.ctx.Err() != nil:
				return Cancelled, ErrCancelled
			case watch.fired.Load():
				return Failed, &TransportError{Op: "read", Err: ErrIdleTimeout}
			case err != nil:
				return Failed, &TransportError{Op: "read", Err: err}
			}
			// body ended without [DONE]
			return Completed, nil
		}
		if watch.fired.Load() {
			return Failed, &TransportError{Op: "read", Err: ErrIdleTimeout}
		}
		s.state.CompareAndSwap(int32(Opening), int32(Streaming))

		frag, ok, err := dec.Decode(sc.Text())
		if err != nil {
			var ue *eventstream.UpstreamError
			if errors.As(err, &ue) {
				return Failed, &TransportError{Op: "stream", Message: ue.Message, Err: ue}
			}
			return Failed, err
		}
		if dec.Terminated() {
			return Completed, nil
		}
		if !ok || frag == "" {
			continue
		}
		select {
		case s.out <- frag:
			s.delivered.Add(1)
		case <-s.ctx.Done():
			return Cancelled, ErrCancelled
		}
	}
}

// idleWatch closes the upstream when a single read blocks longer than d.
type idleWatch struct {
	d      time.Duration
	t      *time.Timer
	fired  atomic.Bool
	onFire func()
}

func (w *idleWatch) arm() {
	if w.d <= 0 {
		return
	}
	if w.t == nil {
		w.t = time.AfterFunc(w.d, func() {
			w.fired.Store(true)
			w.onFire()
		})
		return
	}
	w.t.Reset(w.d)
}

func (w *idleWatch) disarm() {
	if w.t != nil {
		w.t.Stop()
	}
}
