package api

import (
	"encoding/json"
	"net/http"

	"github.com/schmackofatz/recipes/core/logx"
)

// Error codes returned in {"error":"<code>"} bodies.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUpstreamError  = "upstream_error"
	CodeMalformedEvent = "malformed_event"
	CodeServerDraining = "server_draining"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: code}); err != nil {
		logx.Log.Error().Err(err).Str("code", code).Msg("write error response")
	}
}
