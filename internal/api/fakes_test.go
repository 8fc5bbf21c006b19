package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schmackofatz/recipes/internal/prompt"
	"github.com/schmackofatz/recipes/internal/relay"
)

type fakeBody struct {
	io.Reader
	closes atomic.Int32
}

func (b *fakeBody) Close() error {
	b.closes.Add(1)
	return nil
}

type fakeTransport struct {
	mu     sync.Mutex
	body   string
	err    error
	last   prompt.Payload
	opened []*fakeBody
}

func (f *fakeTransport) Open(_ context.Context, p prompt.Payload) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
	if f.err != nil {
		return nil, f.err
	}
	b := &fakeBody{Reader: strings.NewReader(f.body)}
	f.opened = append(f.opened, b)
	return b, nil
}

func (f *fakeTransport) lastPayload() prompt.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newRelay(body string) (*relay.Relay, *fakeTransport) {
	ft := &fakeTransport{body: body}
	return relay.New(ft, relay.Options{}), ft
}

func failingRelay(err error) *relay.Relay {
	if err == nil {
		err = errors.New("dial tcp: connection refused")
	}
	return relay.New(&fakeTransport{err: err}, relay.Options{})
}

func sse(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		b, _ := json.Marshal(f)
		fmt.Fprintf(&sb, "data: {\"choices\":[{\"delta\":{\"content\":%s}}]}\n\n", b)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}
