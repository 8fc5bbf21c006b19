package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/schmackofatz/recipes/internal/eventstream"
	"github.com/schmackofatz/recipes/internal/prompt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// trackedBody records close calls and reads attempted after close.
type trackedBody struct {
	r               io.Reader
	closer          io.Closer
	closed          atomic.Bool
	closes          atomic.Int32
	readsAfterClose atomic.Int32
}

func (b *trackedBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		b.readsAfterClose.Add(1)
		return 0, errors.New("read on closed body")
	}
	return b.r.Read(p)
}

func (b *trackedBody) Close() error {
	b.closes.Add(1)
	b.closed.Store(true)
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

type fakeTransport struct {
	mu       sync.Mutex
	open     func(prompt.Payload) (io.ReadCloser, error)
	payloads []prompt.Payload
}

func (f *fakeTransport) Open(_ context.Context, p prompt.Payload) (io.ReadCloser, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	return f.open(p)
}

func staticTransport(body io.ReadCloser) *fakeTransport {
	return &fakeTransport{open: func(prompt.Payload) (io.ReadCloser, error) { return body, nil }}
}

func chunk(content string) string {
	b, _ := json.Marshal(content)
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%s}}]}`+"\n", b)
}

func collect(t *testing.T, s *Session) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-s.Fragments():
			if !ok {
				<-s.Done()
				if !s.State().Terminal() {
					t.Fatalf("state %s after done is not terminal", s.State())
				}
				return got
			}
			got = append(got, f)
		case <-timeout:
			t.Fatalf("session did not finish")
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, st := range []State{Opening, Streaming} {
		if st.Terminal() {
			t.Fatalf("%s reported terminal", st)
		}
	}
	for _, st := range []State{Completed, Failed, Cancelled} {
		if !st.Terminal() {
			t.Fatalf("%s not reported terminal", st)
		}
	}
}

func TestRelayPreservesOrder(t *testing.T) {
	var sb strings.Builder
	var want []string
	sb.WriteString(`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n")
	for c := 'a'; c <= 'z'; c++ {
		sb.WriteString(chunk(string(c)))
		sb.WriteString("\n")
		want = append(want, string(c))
	}
	sb.WriteString("data: [DONE]\n")
	sb.WriteString(chunk("after-done"))
	body := &trackedBody{r: strings.NewReader(sb.String())}

	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{Ingredients: []string{"Eier"}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := collect(t, s)
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Fatalf("got %v", got)
	}
	if s.State() != Completed || s.Err() != nil {
		t.Fatalf("state=%s err=%v", s.State(), s.Err())
	}
	if s.Delivered() != 26 {
		t.Fatalf("delivered=%d", s.Delivered())
	}
	if body.closes.Load() != 1 || body.readsAfterClose.Load() != 0 {
		t.Fatalf("closes=%d readsAfterClose=%d", body.closes.Load(), body.readsAfterClose.Load())
	}
}

func TestRelayEndOfBodyWithoutDone(t *testing.T) {
	body := &trackedBody{r: strings.NewReader(chunk("Hallo") + chunk(" Welt"))}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := strings.Join(collect(t, s), ""); got != "Hallo Welt" {
		t.Fatalf("got %q", got)
	}
	if s.State() != Completed {
		t.Fatalf("state=%s", s.State())
	}
}

func TestRelaySkipsEmptyFragments(t *testing.T) {
	body := &trackedBody{r: strings.NewReader(chunk("") + chunk("x") + chunk("") + "data: [DONE]\n")}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := collect(t, s)
	if len(got) != 1 || got[0] != "x" {
		t.Fatalf("got %q", got)
	}
}

func TestRelayCancelStopsUpstream(t *testing.T) {
	pr, pw := io.Pipe()
	body := &trackedBody{r: pr, closer: pr}
	writerDone := make(chan error, 1)
	go func() {
		for i := 0; i < 10; i++ {
			if _, err := io.WriteString(pw, chunk(fmt.Sprint(i))); err != nil {
				writerDone <- err
				return
			}
		}
		writerDone <- pw.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := New(staticTransport(body), Options{}).Start(ctx, Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if f := <-s.Fragments(); f != fmt.Sprint(i) {
			t.Fatalf("fragment %d=%q", i, f)
		}
	}
	cancel()
	<-s.Done()

	if s.State() != Cancelled || !errors.Is(s.Err(), ErrCancelled) {
		t.Fatalf("state=%s err=%v", s.State(), s.Err())
	}
	if s.Delivered() != 3 {
		t.Fatalf("delivered=%d", s.Delivered())
	}
	if body.closes.Load() != 1 || body.readsAfterClose.Load() != 0 {
		t.Fatalf("closes=%d readsAfterClose=%d", body.closes.Load(), body.readsAfterClose.Load())
	}
	if err := <-writerDone; !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("upstream writer should see closed pipe, got %v", err)
	}
	for range s.Fragments() {
		t.Fatalf("fragment after cancel")
	}
}

func TestRelayCloseInterruptsBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	body := &trackedBody{r: pr, closer: pr}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked on upstream read")
	}
	if s.State() != Cancelled || body.closes.Load() != 1 {
		t.Fatalf("state=%s closes=%d", s.State(), body.closes.Load())
	}
	s.Close()
	if body.closes.Load() != 1 {
		t.Fatalf("second close reached upstream")
	}
}

func TestRelayMalformedEvent(t *testing.T) {
	body := &trackedBody{r: strings.NewReader(chunk("ok") + "data: {broken\n" + chunk("never"))}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := collect(t, s)
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("got %q", got)
	}
	var me *eventstream.MalformedEventError
	if s.State() != Failed || !errors.As(s.Err(), &me) {
		t.Fatalf("state=%s err=%v", s.State(), s.Err())
	}
	if body.closes.Load() != 1 {
		t.Fatalf("closes=%d", body.closes.Load())
	}
}

func TestRelayInBandError(t *testing.T) {
	body := &trackedBody{r: strings.NewReader(`data: {"error":{"message":"overloaded","type":"server_error"}}` + "\n")}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	collect(t, s)
	var te *TransportError
	if !errors.As(s.Err(), &te) || te.Op != "stream" || te.Message != "overloaded" {
		t.Fatalf("err=%v", s.Err())
	}
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, chunk("a")), nil
	}
	return 0, errors.New("connection reset")
}

func TestRelayReadError(t *testing.T) {
	body := &trackedBody{r: &failingReader{}}
	s, err := New(staticTransport(body), Options{}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := collect(t, s); len(got) != 1 {
		t.Fatalf("got %q", got)
	}
	var te *TransportError
	if s.State() != Failed || !errors.As(s.Err(), &te) || te.Op != "read" {
		t.Fatalf("state=%s err=%v", s.State(), s.Err())
	}
}

func TestRelayIdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	body := &trackedBody{r: pr, closer: pr}
	go func() {
		_, _ = io.WriteString(pw, chunk("first"))
	}()
	s, err := New(staticTransport(body), Options{IdleTimeout: 50 * time.Millisecond}).Start(context.Background(), Request{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := collect(t, s)
	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("got %q", got)
	}
	if s.State() != Failed || !errors.Is(s.Err(), ErrIdleTimeout) {
		t.Fatalf("state=%s err=%v", s.State(), s.Err())
	}
	if body.closes.Load() != 1 {
		t.Fatalf("closes=%d", body.closes.Load())
	}
}

func TestRelayOpenFailure(t *testing.T) {
	ft := &fakeTransport{open: func(prompt.Payload) (io.ReadCloser, error) {
		return nil, errors.New("dial tcp: refused")
	}}
	_, err := New(ft, Options{}).Start(context.Background(), Request{})
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "open" {
		t.Fatalf("err=%v", err)
	}

	status := &TransportError{Op: "open", StatusCode: 401, Message: "invalid api key"}
	ft.open = func(prompt.Payload) (io.ReadCloser, error) { return nil, status }
	_, err = New(ft, Options{}).Start(context.Background(), Request{})
	if !errors.As(err, &te) || te != status {
		t.Fatalf("err=%v", err)
	}
}

func TestRelayBuildsPayload(t *testing.T) {
	ft := staticTransport(&trackedBody{r: strings.NewReader("data: [DONE]\n")})
	s, err := New(ft, Options{Model: "test-model"}).Start(context.Background(), Request{
		Ingredients: []string{"rice", "beans"},
		Language:    prompt.English,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	collect(t, s)
	p := ft.payloads[0]
	if p.Model != "test-model" || !p.Stream || len(p.Messages) != 4 {
		t.Fatalf("payload=%+v", p)
	}
	if !strings.HasPrefix(p.Messages[3].Content, "Ingredients: rice, beans.") {
		t.Fatalf("final message=%q", p.Messages[3].Content)
	}
	if s.Language != prompt.English {
		t.Fatalf("language=%s", s.Language)
	}
}

func TestRelayConcurrentSessionsAreIndependent(t *testing.T) {
	ft := &fakeTransport{open: func(p prompt.Payload) (io.ReadCloser, error) {
		tag := strings.TrimSuffix(strings.TrimPrefix(p.Messages[3].Content, "Zutaten: "), ". Erstelle daraus genau 2 Rezeptvorschlaege im vorgegebenen Format.")
		var sb strings.Builder
		for i := 0; i < 20; i++ {
			sb.WriteString(chunk(fmt.Sprintf("%s-%d;", tag, i)))
		}
		sb.WriteString("data: [DONE]\n")
		return &trackedBody{r: strings.NewReader(sb.String())}, nil
	}}
	r := New(ft, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag := fmt.Sprintf("s%d", n)
			s, err := r.Start(context.Background(), Request{Ingredients: []string{tag}})
			if err != nil {
				errs <- err
				return
			}
			var sb strings.Builder
			for f := range s.Fragments() {
				sb.WriteString(f)
			}
			<-s.Done()
			var want strings.Builder
			for i := 0; i < 20; i++ {
				fmt.Fprintf(&want, "%s-%d;", tag, i)
			}
			if sb.String() != want.String() {
				errs <- fmt.Errorf("session %s got %q", tag, sb.String())
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
