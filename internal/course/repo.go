package course

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrConflict: an authored ID already belongs to a different parent, or a
	// material order is already taken within its course.
	ErrConflict = errors.New("conflict")
)

type ResultListOpts struct {
	UserID  string // only this learner's results
	TestID  string
	OwnerID string // only results for tests in courses owned by this teacher
	Limit   int
	Offset  int
}

// ContentStore is read access to authored content plus the enrollment facts
// the access gate needs. Authoring writes live here too.
type ContentStore interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	PutCourse(ctx context.Context, c Course) error
	DeleteCourse(ctx context.Context, id string) error
	PutMaterial(ctx context.Context, m Material) error

	// GetTest returns questions sorted by order with their answers loaded.
	GetTest(ctx context.Context, id string) (Test, error)
	// PutTest upserts a test with its questions and answers, assigning missing IDs.
	PutTest(ctx context.Context, t Test) (Test, error)

	CourseOfTest(ctx context.Context, testID string) (CourseRef, error)
	CourseOfMaterial(ctx context.Context, materialID string) (CourseRef, error)
	IsEnrolled(ctx context.Context, courseID, userID string) (bool, error)
	Enroll(ctx context.Context, courseID, userID string) error
}

// ResultStore persists graded attempts. ReplaceResult must be atomic: the
// (user, test) result row and its answer trace change together or not at all.
type ResultStore interface {
	ReplaceResult(ctx context.Context, s Submission) (TestResult, error)
	GetResult(ctx context.Context, id string) (TestResult, error)
	ListResults(ctx context.Context, opts ResultListOpts) ([]TestResult, error)
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	ContentStore
	ResultStore
}

// dedupeByQuestion keeps the last answer per question, preserving first-seen order.
func dedupeByQuestion(in []UserAnswer) []UserAnswer {
	idx := make(map[string]int, len(in))
	out := make([]UserAnswer, 0, len(in))
	for _, ua := range in {
		if i, ok := idx[ua.QuestionID]; ok {
			out[i] = ua
			continue
		}
		idx[ua.QuestionID] = len(out)
		out = append(out, ua)
	}
	return out
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
