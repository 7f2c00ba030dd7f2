package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

// GET /test-results?test_id=...&user_id=...&limit=50&offset=0
// Students always see only their own results and teachers only results in
// courses they own; admins may filter freely.
func ListResultsHandler(store course.ResultStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		q := r.URL.Query()
		opts := course.ResultListOpts{
			TestID: strings.TrimSpace(q.Get("test_id")),
			UserID: strings.TrimSpace(q.Get("user_id")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		}
		switch actor.Role {
		case rbac.RoleAdmin:
		case rbac.RoleTeacher:
			opts.OwnerID = actor.ID
		case rbac.RoleStudent:
			opts.UserID = actor.ID
		default:
			writeDenied(w, rbac.ReasonUnknownRole)
			return
		}
		list, err := store.ListResults(r.Context(), opts)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /test-results/{resultID}
func GetResultHandler(store course.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		id := strings.TrimSpace(chi.URLParam(r, "resultID"))
		res, err := store.GetResult(r.Context(), id)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		ref, err := store.CourseOfTest(r.Context(), res.TestID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, rbac.CanViewResult(actor, res, ref.OwnerID)) {
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
