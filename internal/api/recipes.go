package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/schmackofatz/recipes/core/logx"
	"github.com/schmackofatz/recipes/internal/eventstream"
	"github.com/schmackofatz/recipes/internal/prompt"
	"github.com/schmackofatz/recipes/internal/relay"
	"github.com/schmackofatz/recipes/internal/serverstate"
)

const maxRequestBody = 64 * 1024

// Starter opens relay sessions. *relay.Relay implements it.
type Starter interface {
	Start(ctx context.Context, req relay.Request) (*relay.Session, error)
}

// RecipeStreamHandler serves POST /api/recipes/stream. The body is a JSON
// array of ingredient names; the optional language query parameter selects
// the prompt language. Fragments are written to the response as raw text in
// the order they arrive, each followed by a flush.
func RecipeStreamHandler(rl Starter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ingredients []string
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&ingredients); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest)
			return
		}
		lang := prompt.ParseLanguage(r.URL.Query().Get("language"))
		reqID := chiMiddleware.GetReqID(r.Context())

		sess, err := rl.Start(r.Context(), relay.Request{Ingredients: ingredients, Language: lang})
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			writeError(w, http.StatusBadGateway, CodeUpstreamError)
			return
		}
		defer sess.Close()

		flusher, _ := w.(http.Flusher)
		committed := false
		commit := func() {
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-store")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			committed = true
		}
		for frag := range sess.Fragments() {
			if !committed {
				commit()
			}
			if _, err := io.WriteString(w, frag); err != nil {
				logx.Log.Debug().Err(err).Str("request_id", reqID).Str("session_id", sess.ID).Msg("client write failed")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		<-sess.Done()

		err = sess.Err()
		switch {
		case committed, errors.Is(err, relay.ErrCancelled):
			// headers are out or nobody is listening; the stream just ends
		case err == nil:
			commit()
		default:
			var me *eventstream.MalformedEventError
			if errors.As(err, &me) {
				writeError(w, http.StatusBadGateway, CodeMalformedEvent)
			} else {
				writeError(w, http.StatusBadGateway, CodeUpstreamError)
			}
		}
	}
}

// RejectWhenDraining refuses new work with 503 once a drain has started.
func RejectWhenDraining(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, CodeServerDraining)
			return
		}
		next.ServeHTTP(w, r)
	})
}
