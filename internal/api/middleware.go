package api

import (
	"bytes"
	"io"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/schmackofatz/recipes/core/logx"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (lw *loggingResponseWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if zerolog.GlobalLevel() <= zerolog.TraceLevel {
		logx.Log.Trace().Bytes("body", b).Msg("http response chunk")
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.bytes += int64(n)
	return n, err
}

func (lw *loggingResponseWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter { return lw.ResponseWriter }

// MiddlewareChain returns the middleware applied to every route.
func MiddlewareChain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		chiMiddleware.Recoverer,
		requestLogger,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := zerolog.GlobalLevel()
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		reqID := chiMiddleware.GetReqID(r.Context())
		if lvl <= zerolog.DebugLevel {
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			logx.Log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("url", r.URL.String()).Interface("headers", r.Header).Bytes("body", body).Msg("http request")
		}
		next.ServeHTTP(lrw, r)
		if lvl <= zerolog.DebugLevel {
			logx.Log.Debug().Str("request_id", reqID).Str("url", r.URL.String()).Int("status", lrw.status).Int64("bytes", lrw.bytes).Interface("headers", lrw.Header()).Msg("http response")
		} else if lvl <= zerolog.InfoLevel {
			logx.Log.Info().Str("request_id", reqID).Str("url", r.URL.String()).Int("status", lrw.status).Msg("http")
		}
	})
}
