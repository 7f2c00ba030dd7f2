package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/course"
)

// Pair is one submitted (question, answer) choice. IDs are unresolved until
// Grade checks them against the test.
type Pair struct {
	QuestionID string `json:"question"`
	AnswerID   string `json:"answer"`
}

// GradeResult is what the learner sees after a submission.
type GradeResult struct {
	Score          int  `json:"score"`
	Passed         bool `json:"passed"`
	CorrectAnswers int  `json:"correct_answers"`
	TotalQuestions int  `json:"total_questions"`
}

// Score is the integer percentage of correct answers, truncated. A test with
// no questions scores 0.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return correct * 100 / total
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithLogger(l *slog.Logger) Option      { return func(e *Engine) { e.log = l } }

// Engine scores a submission against a loaded test and persists the attempt,
// replacing the learner's previous result for that test.
type Engine struct {
	results course.ResultStore
	now     func() time.Time
	log     *slog.Logger
}

func NewEngine(results course.ResultStore, opts ...Option) *Engine {
	e := &Engine{results: results, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// answerRef locates an answer within one test.
type answerRef struct {
	questionID string
	correct    bool
}

func indexAnswers(t course.Test) map[string]answerRef {
	idx := make(map[string]answerRef)
	for _, q := range t.Questions {
		for _, a := range q.Answers {
			idx[a.ID] = answerRef{questionID: q.ID, correct: a.IsCorrect}
		}
	}
	return idx
}

// Grade resolves pairs against t, scores them and persists the attempt for
// userID. Pairs whose answer is unknown, or belongs to a different question
// than claimed, are dropped. A question answered more than once counts once
// per pair; the stored trace keeps the last pair for each question.
func (e *Engine) Grade(ctx context.Context, userID string, t course.Test, pairs []Pair) (GradeResult, error) {
	idx := indexAnswers(t)

	valid := make([]course.UserAnswer, 0, len(pairs))
	correct, dropped := 0, 0
	for _, p := range pairs {
		ref, ok := idx[p.AnswerID]
		if !ok || ref.questionID != p.QuestionID {
			dropped++
			continue
		}
		if ref.correct {
			correct++
		}
		valid = append(valid, course.UserAnswer{QuestionID: p.QuestionID, AnswerID: p.AnswerID})
	}

	total := len(t.Questions)
	score := Score(correct, total)
	res := GradeResult{
		Score:          score,
		Passed:         score >= t.PassingScore,
		CorrectAnswers: correct,
		TotalQuestions: total,
	}

	if dropped > 0 {
		e.log.WarnContext(ctx, "grading: dropped invalid pairs",
			"test_id", t.ID, "user_id", userID, "dropped", dropped, "submitted", len(pairs))
	}

	saved, err := e.results.ReplaceResult(ctx, course.Submission{
		UserID:      userID,
		TestID:      t.ID,
		Score:       res.Score,
		Passed:      res.Passed,
		CompletedAt: e.now().UTC(),
		Answers:     valid,
	})
	if err != nil {
		return GradeResult{}, fmt.Errorf("persist result: %w", err)
	}

	e.log.InfoContext(ctx, "grading: result saved",
		"result_id", saved.ID, "test_id", t.ID, "user_id", userID,
		"score", res.Score, "passed", res.Passed,
		"correct", correct, "total", total)
	return res, nil
}
