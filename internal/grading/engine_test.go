package grading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/course"
)

type recordingStore struct {
	subs []course.Submission
	err  error
}

func (r *recordingStore) ReplaceResult(_ context.Context, s course.Submission) (course.TestResult, error) {
	if r.err != nil {
		return course.TestResult{}, r.err
	}
	r.subs = append(r.subs, s)
	return course.TestResult{ID: "r1", UserID: s.UserID, TestID: s.TestID, Score: s.Score, IsPassed: s.Passed}, nil
}

func (r *recordingStore) GetResult(context.Context, string) (course.TestResult, error) {
	return course.TestResult{}, course.ErrNotFound
}

func (r *recordingStore) ListResults(context.Context, course.ResultListOpts) ([]course.TestResult, error) {
	return nil, nil
}

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// quiz has three questions, each with one correct (aN1) and one wrong (aN2) answer.
func quiz(passing int) course.Test {
	t := course.Test{ID: "t1", PassingScore: passing}
	for _, q := range []string{"q1", "q2", "q3"} {
		t.Questions = append(t.Questions, course.Question{
			ID: q,
			Answers: []course.Answer{
				{ID: "a" + q[1:] + "1", IsCorrect: true},
				{ID: "a" + q[1:] + "2"},
			},
		})
	}
	return t
}

func TestScore(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{7, 10, 70},
		{4, 3, 133},
	}
	for _, tt := range tests {
		if got := Score(tt.correct, tt.total); got != tt.want {
			t.Errorf("Score(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		test      course.Test
		pairs     []Pair
		want      GradeResult
		persisted int
	}{
		{
			name:      "all correct",
			test:      quiz(70),
			pairs:     []Pair{{"q1", "a11"}, {"q2", "a21"}, {"q3", "a31"}},
			want:      GradeResult{Score: 100, Passed: true, CorrectAnswers: 3, TotalQuestions: 3},
			persisted: 3,
		},
		{
			name:      "two of three below threshold",
			test:      quiz(70),
			pairs:     []Pair{{"q1", "a11"}, {"q2", "a21"}, {"q3", "a32"}},
			want:      GradeResult{Score: 66, Passed: false, CorrectAnswers: 2, TotalQuestions: 3},
			persisted: 3,
		},
		{
			name:      "score equal to threshold passes",
			test:      quiz(66),
			pairs:     []Pair{{"q1", "a11"}, {"q2", "a21"}},
			want:      GradeResult{Score: 66, Passed: true, CorrectAnswers: 2, TotalQuestions: 3},
			persisted: 2,
		},
		{
			name:      "empty submission",
			test:      quiz(70),
			want:      GradeResult{Score: 0, Passed: false, CorrectAnswers: 0, TotalQuestions: 3},
			persisted: 0,
		},
		{
			name:      "answer from another question is dropped",
			test:      quiz(0),
			pairs:     []Pair{{"q1", "a21"}, {"q2", "a21"}},
			want:      GradeResult{Score: 33, Passed: true, CorrectAnswers: 1, TotalQuestions: 3},
			persisted: 1,
		},
		{
			name:      "unknown ids are dropped",
			test:      quiz(70),
			pairs:     []Pair{{"nope", "a11"}, {"q1", "nope"}, {"", ""}},
			want:      GradeResult{Score: 0, CorrectAnswers: 0, TotalQuestions: 3},
			persisted: 0,
		},
		{
			name:      "no questions",
			test:      course.Test{ID: "t1", PassingScore: 0},
			want:      GradeResult{Score: 0, Passed: true, TotalQuestions: 0},
			persisted: 0,
		},
		{
			name:      "duplicate pairs are each counted",
			test:      quiz(70),
			pairs:     []Pair{{"q1", "a11"}, {"q1", "a11"}, {"q1", "a11"}, {"q1", "a11"}},
			want:      GradeResult{Score: 133, Passed: true, CorrectAnswers: 4, TotalQuestions: 3},
			persisted: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := &recordingStore{}
			at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			e := NewEngine(rs, WithLogger(quietLog), WithClock(func() time.Time { return at }))

			got, err := e.Grade(context.Background(), "u1", tt.test, tt.pairs)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if len(rs.subs) != 1 {
				t.Fatalf("expected one persisted submission, got %d", len(rs.subs))
			}
			s := rs.subs[0]
			if s.UserID != "u1" || s.TestID != tt.test.ID || s.Score != tt.want.Score || s.Passed != tt.want.Passed {
				t.Errorf("submission = %+v", s)
			}
			if !s.CompletedAt.Equal(at) {
				t.Errorf("completed_at = %v, want %v", s.CompletedAt, at)
			}
			if len(s.Answers) != tt.persisted {
				t.Errorf("persisted %d answers, want %d", len(s.Answers), tt.persisted)
			}
		})
	}
}

func TestGradeStorageFailure(t *testing.T) {
	boom := errors.New("disk full")
	e := NewEngine(&recordingStore{err: boom}, WithLogger(quietLog))
	res, err := e.Grade(context.Background(), "u1", quiz(70), []Pair{{"q1", "a11"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if res != (GradeResult{}) {
		t.Errorf("result on failure = %+v", res)
	}
}
