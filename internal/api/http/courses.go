package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

type createCourseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
}

// POST /courses
// The caller becomes the owner; the ID is always assigned here.
func CreateCourseHandler(store course.ContentStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		var req createCourseRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid course: "+err.Error())
			return
		}
		c := course.Course{
			ID:          uuid.NewString(),
			Title:       strings.TrimSpace(req.Title),
			Description: req.Description,
			OwnerID:     actor.ID,
		}
		if err := store.PutCourse(r.Context(), c); err != nil {
			writeErr(w, r, log, err)
			return
		}
		stored, err := store.GetCourse(r.Context(), c.ID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "course created", "course_id", c.ID, "owner", actor.ID)
		writeJSON(w, http.StatusCreated, stored)
	}
}

type putMaterialRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content"`
	Order    int    `json:"order" validate:"min=0"`
}

// PUT /materials/{materialID}
// Creates or updates a material. The actor must manage the target course, and
// an existing material cannot move to another course.
func PutMaterialHandler(store course.ContentStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		materialID := strings.TrimSpace(chi.URLParam(r, "materialID"))
		var req putMaterialRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid material: "+err.Error())
			return
		}

		ref, err := store.CourseOfMaterial(r.Context(), materialID)
		switch {
		case errors.Is(err, course.ErrNotFound):
		case err != nil:
			writeErr(w, r, log, err)
			return
		default:
			if !writeDecision(w, rbac.CanManageCourse(actor, ref.OwnerID)) {
				return
			}
			if ref.CourseID != req.CourseID {
				writeErr(w, r, log, fmt.Errorf("material %q belongs to course %q: %w", materialID, ref.CourseID, course.ErrConflict))
				return
			}
		}

		c, err := store.GetCourse(r.Context(), req.CourseID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, rbac.CanManageCourse(actor, c.OwnerID)) {
			return
		}
		m := course.Material{
			ID:       materialID,
			CourseID: c.ID,
			Title:    strings.TrimSpace(req.Title),
			Content:  req.Content,
			Order:    req.Order,
		}
		if err := store.PutMaterial(r.Context(), m); err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "material saved", "material_id", m.ID, "course_id", m.CourseID, "by", actor.ID)
		writeJSON(w, http.StatusOK, m)
	}
}

// POST /courses/{courseID}/enroll
func EnrollHandler(store course.ContentStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		if _, err := store.GetCourse(r.Context(), courseID); err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, rbac.CanEnroll(actor)) {
			return
		}
		if err := store.Enroll(r.Context(), courseID, actor.ID); err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "student enrolled", "course_id", courseID, "user_id", actor.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "enrolled"})
	}
}

// DELETE /courses/{courseID}
// Removes the course with its materials, tests, questions, answers, results
// and enrollments.
func DeleteCourseHandler(store course.ContentStore, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		courseID := strings.TrimSpace(chi.URLParam(r, "courseID"))
		c, err := store.GetCourse(r.Context(), courseID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, rbac.CanManageCourse(actor, c.OwnerID)) {
			return
		}
		if err := store.DeleteCourse(r.Context(), courseID); err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "course deleted", "course_id", courseID, "by", actor.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
