package http

import (
	"log/slog"
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-courses/internal/sync"
)

// GET /events?after=0&limit=100
// Pages through the append-only event log for replication consumers.
func EventsHandler(repo *syncx.EventRepo, q syncx.Queryer, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		if err != nil {
			after = 0
		}
		evs, err := repo.Since(r.Context(), q, after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
