package course

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu        sync.RWMutex
	courses   map[string]Course
	students  map[string]map[string]bool // courseID -> studentID
	materials map[string]Material
	tests     map[string]Test
	results   map[string]TestResult // resultID -> result
	byPair    map[[2]string]string  // (userID, testID) -> resultID
}

// NewInMemoryStore returns a Store kept entirely in process memory. A single
// lock covers every operation, which makes ReplaceResult trivially atomic.
func NewInMemoryStore() Store {
	return &memoryStore{
		courses:   map[string]Course{},
		students:  map[string]map[string]bool{},
		materials: map[string]Material{},
		tests:     map[string]Test{},
		results:   map[string]TestResult{},
		byPair:    map[[2]string]string{},
	}
}

func (m *memoryStore) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, fmt.Errorf("course %q: %w", id, ErrNotFound)
	}
	return c, nil
}

func (m *memoryStore) PutCourse(_ context.Context, c Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.courses[c.ID]; ok {
		c.CreatedAt = old.CreatedAt
	} else if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	m.courses[c.ID] = c
	return nil
}

func (m *memoryStore) PutMaterial(_ context.Context, mat Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[mat.CourseID]; !ok {
		return fmt.Errorf("course %q: %w", mat.CourseID, ErrNotFound)
	}
	for id, other := range m.materials {
		if id != mat.ID && other.CourseID == mat.CourseID && other.Order == mat.Order {
			return fmt.Errorf("material order %d already used in course %q: %w", mat.Order, mat.CourseID, ErrConflict)
		}
	}
	if old, ok := m.materials[mat.ID]; ok {
		mat.CourseID = old.CourseID
	}
	m.materials[mat.ID] = mat
	return nil
}

func (m *memoryStore) DeleteCourse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return fmt.Errorf("course %q: %w", id, ErrNotFound)
	}
	for mid, mat := range m.materials {
		if mat.CourseID != id {
			continue
		}
		for tid, t := range m.tests {
			if t.MaterialID != mid {
				continue
			}
			for rid, r := range m.results {
				if r.TestID == tid {
					delete(m.byPair, [2]string{r.UserID, r.TestID})
					delete(m.results, rid)
				}
			}
			delete(m.tests, tid)
		}
		delete(m.materials, mid)
	}
	delete(m.students, id)
	delete(m.courses, id)
	return nil
}

func (m *memoryStore) IsEnrolled(_ context.Context, courseID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.students[courseID][userID], nil
}

func (m *memoryStore) Enroll(_ context.Context, courseID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[courseID]; !ok {
		return fmt.Errorf("course %q: %w", courseID, ErrNotFound)
	}
	set := m.students[courseID]
	if set == nil {
		set = map[string]bool{}
		m.students[courseID] = set
	}
	if set[userID] {
		return ErrAlreadyEnrolled
	}
	set[userID] = true
	return nil
}

func (m *memoryStore) CourseOfTest(_ context.Context, testID string) (CourseRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[testID]
	if !ok {
		return CourseRef{}, fmt.Errorf("test %q: %w", testID, ErrNotFound)
	}
	mat, ok := m.materials[t.MaterialID]
	if !ok {
		return CourseRef{}, fmt.Errorf("material %q: %w", t.MaterialID, ErrNotFound)
	}
	c, ok := m.courses[mat.CourseID]
	if !ok {
		return CourseRef{}, fmt.Errorf("course %q: %w", mat.CourseID, ErrNotFound)
	}
	return CourseRef{CourseID: c.ID, OwnerID: c.OwnerID}, nil
}

func (m *memoryStore) CourseOfMaterial(_ context.Context, materialID string) (CourseRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mat, ok := m.materials[materialID]
	if !ok {
		return CourseRef{}, fmt.Errorf("material %q: %w", materialID, ErrNotFound)
	}
	c, ok := m.courses[mat.CourseID]
	if !ok {
		return CourseRef{}, fmt.Errorf("course %q: %w", mat.CourseID, ErrNotFound)
	}
	return CourseRef{CourseID: c.ID, OwnerID: c.OwnerID}, nil
}

// checkOwnership rejects payload question IDs held by another test and answer
// IDs held by another question. Questions of t that the payload drops release
// their answers. Caller holds m.mu.
func (m *memoryStore) checkOwnership(t Test) error {
	inPayload := map[string]bool{}
	for _, q := range t.Questions {
		inPayload[q.ID] = true
	}
	questionOf := map[string]string{}
	answerOf := map[string]string{}
	for _, other := range m.tests {
		for _, q := range other.Questions {
			questionOf[q.ID] = other.ID
			if other.ID == t.ID && !inPayload[q.ID] {
				continue
			}
			for _, a := range q.Answers {
				answerOf[a.ID] = q.ID
			}
		}
	}
	for _, q := range t.Questions {
		if owner, ok := questionOf[q.ID]; ok && q.ID != "" && owner != t.ID {
			return fmt.Errorf("question %q belongs to another test: %w", q.ID, ErrConflict)
		}
		for _, a := range q.Answers {
			if owner, ok := answerOf[a.ID]; ok && a.ID != "" && owner != q.ID {
				return fmt.Errorf("answer %q belongs to another question: %w", a.ID, ErrConflict)
			}
		}
	}
	return nil
}

func (m *memoryStore) GetTest(_ context.Context, id string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	return copyTest(t), nil
}

func (m *memoryStore) PutTest(_ context.Context, t Test) (Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[t.MaterialID]; !ok {
		return Test{}, fmt.Errorf("material %q: %w", t.MaterialID, ErrNotFound)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if old, ok := m.tests[t.ID]; ok && old.MaterialID != t.MaterialID {
		return Test{}, fmt.Errorf("test %q belongs to another material: %w", t.ID, ErrConflict)
	}
	if err := m.checkOwnership(t); err != nil {
		return Test{}, err
	}
	t = copyTest(t)
	keepQ := map[string]bool{}
	keepA := map[string]bool{}
	for i := range t.Questions {
		q := &t.Questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.TestID = t.ID
		keepQ[q.ID] = true
		for j := range q.Answers {
			a := &q.Answers[j]
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			a.QuestionID = q.ID
			keepA[a.ID] = true
		}
	}
	sort.SliceStable(t.Questions, func(i, j int) bool { return t.Questions[i].Order < t.Questions[j].Order })

	// drop learner answers pointing at removed questions or answers
	for rid, r := range m.results {
		if r.TestID != t.ID {
			continue
		}
		kept := r.UserAnswers[:0:0]
		for _, ua := range r.UserAnswers {
			if keepQ[ua.QuestionID] && keepA[ua.AnswerID] {
				kept = append(kept, ua)
			}
		}
		r.UserAnswers = kept
		m.results[rid] = r
	}
	m.tests[t.ID] = t
	return copyTest(t), nil
}

func (m *memoryStore) ReplaceResult(_ context.Context, sub Submission) (TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[sub.TestID]; !ok {
		return TestResult{}, fmt.Errorf("test %q: %w", sub.TestID, ErrNotFound)
	}
	key := [2]string{sub.UserID, sub.TestID}
	id, ok := m.byPair[key]
	if !ok {
		id = uuid.NewString()
		m.byPair[key] = id
	}
	answers := dedupeByQuestion(sub.Answers)
	r := TestResult{
		ID:          id,
		UserID:      sub.UserID,
		TestID:      sub.TestID,
		Score:       sub.Score,
		IsPassed:    sub.Passed,
		CompletedAt: sub.CompletedAt.UTC().Truncate(time.Second),
		UserAnswers: make([]UserAnswer, 0, len(answers)),
	}
	for _, ua := range answers {
		ua.ID = uuid.NewString()
		ua.TestResultID = id
		r.UserAnswers = append(r.UserAnswers, ua)
	}
	m.results[id] = r
	return copyResult(r), nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return TestResult{}, fmt.Errorf("test result %q: %w", id, ErrNotFound)
	}
	return copyResult(r), nil
}

func (m *memoryStore) ListResults(_ context.Context, opts ResultListOpts) ([]TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit, offset := clampPage(opts.Limit, opts.Offset)
	out := []TestResult{}
	for _, r := range m.results {
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		if opts.TestID != "" && r.TestID != opts.TestID {
			continue
		}
		if opts.OwnerID != "" && m.ownerOfTest(r.TestID) != opts.OwnerID {
			continue
		}
		out = append(out, copyResult(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []TestResult{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ownerOfTest(testID string) string {
	t, ok := m.tests[testID]
	if !ok {
		return ""
	}
	return m.courses[m.materials[t.MaterialID].CourseID].OwnerID
}

func copyTest(t Test) Test {
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Answers = append([]Answer{}, q.Answers...)
		out.Questions[i] = q
	}
	return out
}

func copyResult(r TestResult) TestResult {
	r.UserAnswers = append([]UserAnswer{}, r.UserAnswers...)
	return r
}
