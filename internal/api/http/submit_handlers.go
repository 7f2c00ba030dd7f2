package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/grading"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

type submitRequest struct {
	UserAnswers []grading.Pair `json:"user_answers"`
}

// POST /tests/{testID}/submit  {"user_answers":[{"question":"..","answer":".."}]}
// The gate decides who may submit, so this route carries no role middleware.
func SubmitTestHandler(svc *grading.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := rbac.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		// an empty body is an empty submission
		var req submitRequest
		if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		res, err := svc.Submit(r.Context(), actor, testID, req.UserAnswers)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}
