package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter reports whether the process can serve, naming what it
// still waits for otherwise.
type ReadinessReporter interface {
	Readiness() (ready bool, pending []string)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status  string   `json:"status"`
			Pending []string `json:"pending,omitempty"`
		}
		ready, pending := rr.Readiness()
		out := resp{Status: "ready"}
		if !ready {
			out.Status = "not_ready"
			out.Pending = pending
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
