package api

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/schmackofatz/recipes/core/logx"
	"github.com/schmackofatz/recipes/internal/inflight"
	"github.com/schmackofatz/recipes/internal/serverstate"
)

// ProcessStats describes the server process.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// StateSnapshot is the body of GET /api/state.
type StateSnapshot struct {
	Status        string       `json:"status"`
	Draining      bool         `json:"draining"`
	Since         time.Time    `json:"since"`
	Version       string       `json:"version"`
	ActiveStreams int64        `json:"active_streams"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Process       ProcessStats `json:"process"`
}

// StateHandler serves state snapshots.
type StateHandler struct {
	Streams *inflight.Counter
	Started time.Time
	Version string

	proc *process.Process
}

// NewStateHandler returns a handler reporting on the current process.
func NewStateHandler(streams *inflight.Counter, version string) *StateHandler {
	h := &StateHandler{Streams: streams, Started: time.Now(), Version: version}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.proc = p
	} else {
		logx.Log.Warn().Err(err).Msg("process stats unavailable")
	}
	return h
}

// Snapshot collects the current state.
func (h *StateHandler) Snapshot() StateSnapshot {
	st := serverstate.Snapshot()
	snap := StateSnapshot{
		Status:        st.Status,
		Draining:      st.Draining,
		Since:         st.Since,
		Version:       h.Version,
		UptimeSeconds: time.Since(h.Started).Seconds(),
		Process:       ProcessStats{Goroutines: runtime.NumGoroutine()},
	}
	if h.Streams != nil {
		snap.ActiveStreams = h.Streams.Load()
	}
	if h.proc != nil {
		if mi, err := h.proc.MemoryInfo(); err == nil {
			snap.Process.RSSBytes = mi.RSS
		}
		if cpu, err := h.proc.CPUPercent(); err == nil {
			snap.Process.CPUPercent = cpu
		}
	}
	return snap
}

// GetState writes a JSON snapshot.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(h.Snapshot()); err != nil {
		logx.Log.Error().Err(err).Msg("encode state")
	}
}
