package api

import (
	"context"
	"net/http"
	"time"
)

const checkTimeout = 5 * time.Second

// Checker is a named readiness probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// handleReadyz returns 200 only when every checker passes.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	allOK := true

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	if !allOK {
		s.writeJSON(w, http.StatusServiceUnavailable, healthResult{Status: "fail", Checks: checks})

		return
	}

	s.writeJSON(w, http.StatusOK, healthResult{Status: "ok", Checks: checks})
}
