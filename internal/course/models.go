package course

import "time"

type Course struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   int64  `json:"created_at,omitempty"`
}

// Material is an ordered unit of course content that may own tests.
type Material struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	Order    int    `json:"order"`
}

type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id,omitempty"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

type Question struct {
	ID      string   `json:"id"`
	TestID  string   `json:"test_id,omitempty"`
	Text    string   `json:"text"`
	Order   int      `json:"order"`
	Answers []Answer `json:"answers"`
}

type Test struct {
	ID           string     `json:"id"`
	MaterialID   string     `json:"material_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	PassingScore int        `json:"passing_score"`
	Questions    []Question `json:"questions"`
}

// DefaultPassingScore applies when a test is authored without a threshold.
const DefaultPassingScore = 70

// StripKeys returns a copy of t with every answer's correctness flag cleared,
// for serving to learners.
func (t Test) StripKeys() Test {
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Answers = append([]Answer(nil), q.Answers...)
		for j := range q.Answers {
			q.Answers[j].IsCorrect = false
		}
		out.Questions[i] = q
	}
	return out
}

// CourseRef identifies the course owning a test (test -> material -> course).
type CourseRef struct {
	CourseID string
	OwnerID  string
}

type TestResult struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	TestID      string       `json:"test_id"`
	Score       int          `json:"score"`
	IsPassed    bool         `json:"is_passed"`
	CompletedAt time.Time    `json:"completed_at"`
	UserAnswers []UserAnswer `json:"user_answers"`
}

// UserAnswer is one learner choice within a graded attempt.
type UserAnswer struct {
	ID           string `json:"id,omitempty"`
	TestResultID string `json:"test_result_id,omitempty"`
	QuestionID   string `json:"question"`
	AnswerID     string `json:"answer"`
}

// Submission is a graded attempt ready to be persisted. Answers holds only
// pairs that resolved against the test.
type Submission struct {
	UserID      string
	TestID      string
	Score       int
	Passed      bool
	CompletedAt time.Time
	Answers     []UserAnswer
}
