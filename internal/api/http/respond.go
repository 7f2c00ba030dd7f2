package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/grading"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

const maxBody = 1 << 20

var validate = validator.New()

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDenied renders a gate denial as {"forbidden": reason}.
func writeDenied(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusForbidden, map[string]string{"forbidden": reason})
}

// decode reads a JSON body into v and runs struct validation on it.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return validate.Struct(v)
}

// writeErr maps domain errors to status codes. Storage failures are logged
// and reported without detail.
func writeErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var denied *grading.DeniedError
	switch {
	case errors.As(err, &denied):
		writeDenied(w, denied.Reason)
	case errors.Is(err, course.ErrNotFound), errors.Is(err, users.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, course.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, course.ErrAlreadyEnrolled), errors.Is(err, users.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeDecision(w http.ResponseWriter, d rbac.Decision) bool {
	if d.Allowed {
		return true
	}
	writeDenied(w, d.Reason)
	return false
}

func parseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
