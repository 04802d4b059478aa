package server

import (
	"net/http"
	"time"
)

type healthQueue struct {
	EntityID  string  `json:"entity_id"`
	Size      int     `json:"size"`
	OldestAge float64 `json:"oldest_age_seconds"`
}

type healthResponse struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	Queues        []healthQueue `json:"queues"`
}

// HandleHealth serves the unauthenticated health probe (spec.md §6):
// process uptime plus per-Entity queue sizes with oldest-age.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.bus.Stats()
	queues := make([]healthQueue, len(stats))
	for i, q := range stats {
		queues[i] = healthQueue{
			EntityID:  q.EntityID,
			Size:      q.Size,
			OldestAge: q.OldestAge.Seconds(),
		}
	}

	httpResponseJSON(w, healthResponse{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Queues:        queues,
	}, http.StatusOK)
}
