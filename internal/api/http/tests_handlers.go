package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

// GET /tests/{testID}
// Students must be enrolled and never see answer keys; teachers must own
// the course.
func GetTestHandler(store course.ContentStore, gate *rbac.Gate, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))

		var d rbac.Decision
		var err error
		switch actor.Role {
		case rbac.RoleStudent:
			d, err = gate.AuthorizeSubmission(r.Context(), actor, testID)
		case rbac.RoleAdmin, rbac.RoleTeacher:
			d, err = gate.AuthorizeManage(r.Context(), actor, testID)
		default:
			d = rbac.Deny(rbac.ReasonUnknownRole)
		}
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, d) {
			return
		}

		t, err := store.GetTest(r.Context(), testID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if actor.Role == rbac.RoleStudent {
			t = t.StripKeys()
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type putAnswer struct {
	ID        string `json:"id"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type putQuestion struct {
	ID      string      `json:"id"`
	Text    string      `json:"text" validate:"required"`
	Order   int         `json:"order" validate:"min=0"`
	Answers []putAnswer `json:"answers" validate:"min=1,dive"`
}

type putTestRequest struct {
	MaterialID   string        `json:"material_id" validate:"required"`
	Title        string        `json:"title" validate:"required,max=200"`
	Description  string        `json:"description"`
	PassingScore *int          `json:"passing_score" validate:"omitempty,min=0,max=100"`
	Questions    []putQuestion `json:"questions" validate:"dive"`
}

func (p putTestRequest) toTest(id string) course.Test {
	t := course.Test{
		ID:           id,
		MaterialID:   p.MaterialID,
		Title:        p.Title,
		Description:  p.Description,
		PassingScore: course.DefaultPassingScore,
		Questions:    make([]course.Question, 0, len(p.Questions)),
	}
	if p.PassingScore != nil {
		t.PassingScore = *p.PassingScore
	}
	for _, q := range p.Questions {
		cq := course.Question{ID: q.ID, Text: q.Text, Order: q.Order}
		for _, a := range q.Answers {
			cq.Answers = append(cq.Answers, course.Answer{ID: a.ID, Text: a.Text, IsCorrect: a.IsCorrect})
		}
		t.Questions = append(t.Questions, cq)
	}
	return t
}

// PUT /tests/{testID}
// Creates or replaces a whole test. Questions and answers omitted from the
// body are removed together with learner answers that referenced them.
func PutTestHandler(store course.ContentStore, gate *rbac.Gate, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))

		var req putTestRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid test: "+err.Error())
			return
		}

		// an existing test must be manageable where it is now
		d, err := gate.AuthorizeManage(r.Context(), actor, testID)
		switch {
		case errors.Is(err, course.ErrNotFound):
		case err != nil:
			writeErr(w, r, log, err)
			return
		default:
			if !writeDecision(w, d) {
				return
			}
		}
		// and the target material must belong to a course the actor manages
		ref, err := store.CourseOfMaterial(r.Context(), req.MaterialID)
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		if !writeDecision(w, rbac.CanManageCourse(actor, ref.OwnerID)) {
			return
		}

		t, err := store.PutTest(r.Context(), req.toTest(testID))
		if err != nil {
			writeErr(w, r, log, err)
			return
		}
		log.InfoContext(r.Context(), "test saved",
			"test_id", t.ID, "questions", len(t.Questions), "by", actor.ID)
		writeJSON(w, http.StatusOK, t)
	}
}
