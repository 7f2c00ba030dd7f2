package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

var ErrForbidden = errors.New("forbidden")

// DeniedError reports an authorization denial with its human-readable reason.
// errors.Is(err, ErrForbidden) holds for it.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return "forbidden: " + e.Reason }
func (e *DeniedError) Unwrap() error { return ErrForbidden }

// Service is the submission entry point: gate first, then grade. A denied
// submission never reaches storage.
type Service struct {
	content course.ContentStore
	gate    *rbac.Gate
	engine  *Engine
	log     *slog.Logger
}

func NewService(content course.ContentStore, gate *rbac.Gate, engine *Engine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{content: content, gate: gate, engine: engine, log: log}
}

func (s *Service) Submit(ctx context.Context, actor rbac.Actor, testID string, pairs []Pair) (GradeResult, error) {
	d, err := s.gate.AuthorizeSubmission(ctx, actor, testID)
	if err != nil {
		return GradeResult{}, err
	}
	if !d.Allowed {
		s.log.InfoContext(ctx, "grading: submission denied",
			"test_id", testID, "user_id", actor.ID, "role", actor.Role, "reason", d.Reason)
		return GradeResult{}, &DeniedError{Reason: d.Reason}
	}

	t, err := s.content.GetTest(ctx, testID)
	if err != nil {
		return GradeResult{}, fmt.Errorf("load test %s: %w", testID, err)
	}
	return s.engine.Grade(ctx, actor.ID, t, pairs)
}
