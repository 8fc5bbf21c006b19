// Package relay turns one recipe request into an ordered stream of text
// fragments read from the upstream chat-completions API.
package relay

import (
	"context"
	"errors"
	"io"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/schmackofatz/recipes/core/logx"
	"github.com/schmackofatz/recipes/internal/metrics"
	"github.com/schmackofatz/recipes/internal/prompt"
)

// Transport opens the upstream byte stream for a payload. The returned body
// must be closed by the caller; closing it must interrupt a blocked Read.
type Transport interface {
	Open(ctx context.Context, payload prompt.Payload) (io.ReadCloser, error)
}

// Options configure a Relay.
type Options struct {
	Model string
	// IdleTimeout closes the upstream when no line arrives in time. Zero disables it.
	IdleTimeout time.Duration
}

// Request is one recipe request from a client.
type Request struct {
	Ingredients []string
	Language    prompt.Language
}

// Relay starts sessions against a single Transport. It holds no per-session
// state and is safe for concurrent use.
type Relay struct {
	transport Transport
	builder   prompt.Builder
	idle      time.Duration
}

// New returns a Relay using t.
func New(t Transport, opts Options) *Relay {
	return &Relay{transport: t, builder: prompt.Builder{Model: opts.Model}, idle: opts.IdleTimeout}
}

// Start builds the prompt, opens the upstream stream and returns a running
// session. Open failures are returned directly since nothing was streamed yet.
// The session stops when ctx is cancelled or Close is called.
func (r *Relay) Start(ctx context.Context, req Request) (*Session, error) {
	lang := req.Language
	if lang == "" {
		lang = prompt.German
	}
	sctx, cancel := context.WithCancel(ctx)
	s := newSession(sctx, cancel, lang)
	log := logx.Log.With().
		Str("session_id", s.ID).
		Str("request_id", chiMiddleware.GetReqID(ctx)).
		Str("language", lang.String()).
		Int("ingredients", len(req.Ingredients)).
		Logger()

	body, err := r.transport.Open(sctx, r.builder.Build(req.Ingredients, lang))
	if err != nil {
		cancel()
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Op: "open", Err: err}
		}
		metrics.SessionOpenFailed(lang.String())
		log.Warn().Err(err).Msg("upstream open failed")
		return nil, err
	}
	metrics.SessionStarted()
	log.Debug().Msg("session started")
	go s.run(body, r.idle, log)
	return s, nil
}
