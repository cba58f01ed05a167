package server

import (
	"net/http"

	"github.com/eugener/edgecache/internal/circuitbreaker"
)

// BreakerState reports the origin circuit breaker's state.
type BreakerState interface {
	State() circuitbreaker.State
}

// okBody and plainCT are shared by every liveness response; direct header map
// assignment skips the []string alloc of Header.Set (see respond.go:jsonCT).
var (
	okBody  = []byte("ok")
	plainCT = []string{"text/plain"}
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

type readyResponse struct {
	Status        string `json:"status"`
	PurgeLog      string `json:"purge_log,omitempty"`
	OriginBreaker string `json:"origin_breaker,omitempty"`
	Entries       int    `json:"entries"`
}

// handleReadyz fails only when the purge log is unreachable. An open origin
// breaker is reported but keeps the instance ready: hits are still served.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Entries: s.deps.Cache.Len()}
	status := http.StatusOK

	if s.deps.ReadyCheck != nil {
		resp.PurgeLog = "ok"
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			resp.Status = "not_ready"
			resp.PurgeLog = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if s.deps.Breaker != nil {
		st := s.deps.Breaker.State()
		resp.OriginBreaker = st.String()
		if st != circuitbreaker.StateClosed && resp.Status == "ready" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, status, resp)
}
