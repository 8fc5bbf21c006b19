package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/schmackofatz/recipes/internal/inflight"
	"github.com/schmackofatz/recipes/internal/serverstate"
)

func TestGetState(t *testing.T) {
	prev := serverstate.ActiveStore()
	serverstate.UseStore(serverstate.NewMemoryStore())
	defer serverstate.UseStore(prev)
	serverstate.SetState(serverstate.StatusReady)

	var streams inflight.Counter
	streams.Inc()
	defer streams.Dec()

	h := NewStateHandler(&streams, "1.0.0")
	rec := httptest.NewRecorder()
	h.GetState(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var snap StateSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != serverstate.StatusReady || snap.Draining || snap.ActiveStreams != 1 || snap.Version != "1.0.0" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Process.Goroutines == 0 {
		t.Fatalf("goroutines not reported")
	}
}
