package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-courses/internal/db"
	syncx "github.com/mind-engage/mindengage-courses/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(dbh *sql.DB, events *syncx.EventRepo) *SQLStore {
	if events == nil {
		events = syncx.NewEventRepo("")
	}
	return &SQLStore{db: dbh, events: events}
}

// ---------- courses & materials ----------

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id,title,description,owner_id,created_at FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.Description, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, fmt.Errorf("course %q: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *SQLStore) PutCourse(ctx context.Context, c Course) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO courses (id,title,description,owner_id,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, owner_id=EXCLUDED.owner_id`,
		c.ID, c.Title, c.Description, c.OwnerID, c.CreatedAt)
	return err
}

func (s *SQLStore) PutMaterial(ctx context.Context, m Material) error {
	if _, err := s.GetCourse(ctx, m.CourseID); err != nil {
		return err
	}
	var taken int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM materials WHERE course_id=$1 AND ord=$2 AND id<>$3`,
		m.CourseID, m.Order, m.ID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken > 0 {
		return fmt.Errorf("material order %d already used in course %q: %w", m.Order, m.CourseID, ErrConflict)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO materials (id,course_id,title,content,ord)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, content=EXCLUDED.content, ord=EXCLUDED.ord`,
		m.ID, m.CourseID, m.Title, m.Content, m.Order)
	return err
}

// DeleteCourse removes a course and everything beneath it, children first.
// The schema declares no cascades, so the order below is what keeps
// referential integrity on every driver.
func (s *SQLStore) DeleteCourse(ctx context.Context, id string) error {
	const testsOfCourse = `SELECT t.id FROM tests t JOIN materials m ON m.id=t.material_id WHERE m.course_id=$1`
	steps := []string{
		`DELETE FROM user_answers WHERE test_result_id IN (SELECT r.id FROM test_results r WHERE r.test_id IN (` + testsOfCourse + `))`,
		`DELETE FROM test_results WHERE test_id IN (` + testsOfCourse + `)`,
		`DELETE FROM answers WHERE question_id IN (SELECT q.id FROM questions q WHERE q.test_id IN (` + testsOfCourse + `))`,
		`DELETE FROM questions WHERE test_id IN (` + testsOfCourse + `)`,
		`DELETE FROM tests WHERE material_id IN (SELECT id FROM materials WHERE course_id=$1)`,
		`DELETE FROM materials WHERE course_id=$1`,
		`DELETE FROM course_students WHERE course_id=$1`,
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, q := range steps {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete course %q: %w", id, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete course %q: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("course %q: %w", id, ErrNotFound)
		}
		return s.events.Append(ctx, tx, syncx.TypeCourseDeleted, id, map[string]string{"course_id": id})
	})
}

// ---------- enrollment ----------

func (s *SQLStore) IsEnrolled(ctx context.Context, courseID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_students WHERE course_id=$1 AND student_id=$2)`,
		courseID, userID).Scan(&ok)
	return ok, err
}

func (s *SQLStore) Enroll(ctx context.Context, courseID, userID string) error {
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO course_students (course_id, student_id, enrolled_at) VALUES ($1,$2,$3)
		 ON CONFLICT (course_id, student_id) DO NOTHING`,
		courseID, userID, time.Now().Unix())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

func (s *SQLStore) CourseOfTest(ctx context.Context, testID string) (CourseRef, error) {
	var ref CourseRef
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.owner_id
		  FROM tests t
		  JOIN materials m ON m.id=t.material_id
		  JOIN courses c ON c.id=m.course_id
		 WHERE t.id=$1`, testID).Scan(&ref.CourseID, &ref.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return CourseRef{}, fmt.Errorf("test %q: %w", testID, ErrNotFound)
	}
	return ref, err
}

func (s *SQLStore) CourseOfMaterial(ctx context.Context, materialID string) (CourseRef, error) {
	var ref CourseRef
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.owner_id
		  FROM materials m
		  JOIN courses c ON c.id=m.course_id
		 WHERE m.id=$1`, materialID).Scan(&ref.CourseID, &ref.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return CourseRef{}, fmt.Errorf("material %q: %w", materialID, ErrNotFound)
	}
	return ref, err
}

// ---------- tests ----------

func (s *SQLStore) GetTest(ctx context.Context, id string) (Test, error) {
	var t Test
	err := s.db.QueryRowContext(ctx,
		`SELECT id,material_id,title,description,passing_score FROM tests WHERE id=$1`, id).
		Scan(&t.ID, &t.MaterialID, &t.Title, &t.Description, &t.PassingScore)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Test{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id,text,ord FROM questions WHERE test_id=$1 ORDER BY ord, id`, id)
	if err != nil {
		return Test{}, err
	}
	pos := map[string]int{}
	t.Questions = []Question{}
	for rows.Next() {
		q := Question{TestID: id, Answers: []Answer{}}
		if err := rows.Scan(&q.ID, &q.Text, &q.Order); err != nil {
			rows.Close()
			return Test{}, err
		}
		pos[q.ID] = len(t.Questions)
		t.Questions = append(t.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Test{}, err
	}

	arows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.text, a.is_correct
		  FROM answers a
		  JOIN questions q ON q.id=a.question_id
		 WHERE q.test_id=$1
		 ORDER BY a.id`, id)
	if err != nil {
		return Test{}, err
	}
	defer arows.Close()
	for arows.Next() {
		var a Answer
		if err := arows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.IsCorrect); err != nil {
			return Test{}, err
		}
		if i, ok := pos[a.QuestionID]; ok {
			t.Questions[i].Answers = append(t.Questions[i].Answers, a)
		}
	}
	return t, arows.Err()
}

// PutTest upserts the test and reconciles its questions and answers with the
// payload. Questions or answers missing from the payload are removed together
// with any learner answers that reference them.
func (s *SQLStore) PutTest(ctx context.Context, t Test) (Test, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM materials WHERE id=$1`, t.MaterialID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("material %q: %w", t.MaterialID, ErrNotFound)
			}
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO tests (id,material_id,title,description,passing_score)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description, passing_score=EXCLUDED.passing_score
			WHERE tests.material_id=EXCLUDED.material_id`,
			t.ID, t.MaterialID, t.Title, t.Description, t.PassingScore)
		if err != nil {
			return fmt.Errorf("upsert test: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("test %q belongs to another material: %w", t.ID, ErrConflict)
		}

		keepQ := make([]string, 0, len(t.Questions))
		for i := range t.Questions {
			q := &t.Questions[i]
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			q.TestID = t.ID
			keepQ = append(keepQ, q.ID)
		}
		if err := pruneQuestions(ctx, tx, t.ID, keepQ); err != nil {
			return err
		}
		for i := range t.Questions {
			if err := putQuestion(ctx, tx, &t.Questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Test{}, err
	}
	sort.SliceStable(t.Questions, func(i, j int) bool { return t.Questions[i].Order < t.Questions[j].Order })
	return t, nil
}

func putQuestion(ctx context.Context, tx *sql.Tx, q *Question) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO questions (id,test_id,text,ord) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, ord=EXCLUDED.ord
		WHERE questions.test_id=EXCLUDED.test_id`,
		q.ID, q.TestID, q.Text, q.Order)
	if err != nil {
		return fmt.Errorf("upsert question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("question %q belongs to another test: %w", q.ID, ErrConflict)
	}

	keepA := make([]string, 0, len(q.Answers))
	for i := range q.Answers {
		a := &q.Answers[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.QuestionID = q.ID
		keepA = append(keepA, a.ID)
	}
	if err := pruneAnswers(ctx, tx, q.ID, keepA); err != nil {
		return err
	}
	for _, a := range q.Answers {
		res, err := tx.ExecContext(ctx, `INSERT INTO answers (id,question_id,text,is_correct) VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET text=EXCLUDED.text, is_correct=EXCLUDED.is_correct
			WHERE answers.question_id=EXCLUDED.question_id`,
			a.ID, a.QuestionID, a.Text, a.IsCorrect)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("answer %q belongs to another question: %w", a.ID, ErrConflict)
		}
	}
	return nil
}

func pruneQuestions(ctx context.Context, tx *sql.Tx, testID string, keep []string) error {
	notIn, args := notInClause("id", 2, keep)
	args = append([]any{testID}, args...)
	scope := `SELECT id FROM questions WHERE test_id=$1` + notIn
	steps := []string{
		`DELETE FROM user_answers WHERE question_id IN (` + scope + `)`,
		`DELETE FROM answers WHERE question_id IN (` + scope + `)`,
		`DELETE FROM questions WHERE id IN (` + scope + `)`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("prune questions: %w", err)
		}
	}
	return nil
}

func pruneAnswers(ctx context.Context, tx *sql.Tx, questionID string, keep []string) error {
	notIn, args := notInClause("id", 2, keep)
	args = append([]any{questionID}, args...)
	scope := `SELECT id FROM answers WHERE question_id=$1` + notIn
	steps := []string{
		`DELETE FROM user_answers WHERE answer_id IN (` + scope + `)`,
		`DELETE FROM answers WHERE id IN (` + scope + `)`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("prune answers: %w", err)
		}
	}
	return nil
}

// notInClause renders " AND col NOT IN ($n,...)" starting at placeholder index start.
func notInClause(col string, start int, ids []string) (string, []any) {
	if len(ids) == 0 {
		return "", nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "$" + strconv.Itoa(start+i)
		args[i] = id
	}
	return " AND " + col + " NOT IN (" + strings.Join(ph, ",") + ")", args
}

// ---------- results ----------

// ReplaceResult upserts the (user, test) result and swaps its answer trace in
// one transaction. The UNIQUE (user_id, test_id) constraint plus the upsert
// serialise concurrent submissions for the same pair.
func (s *SQLStore) ReplaceResult(ctx context.Context, sub Submission) (TestResult, error) {
	res := TestResult{
		UserID:      sub.UserID,
		TestID:      sub.TestID,
		Score:       sub.Score,
		IsPassed:    sub.Passed,
		CompletedAt: sub.CompletedAt.UTC().Truncate(time.Second),
	}
	answers := dedupeByQuestion(sub.Answers)

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `INSERT INTO test_results (id,user_id,test_id,score,is_passed,completed_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (user_id, test_id) DO UPDATE SET score=EXCLUDED.score, is_passed=EXCLUDED.is_passed, completed_at=EXCLUDED.completed_at
			RETURNING id`,
			uuid.NewString(), res.UserID, res.TestID, res.Score, res.IsPassed, res.CompletedAt.Unix()).Scan(&res.ID)
		if err != nil {
			return fmt.Errorf("upsert test result: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_answers WHERE test_result_id=$1`, res.ID); err != nil {
			return fmt.Errorf("clear user answers: %w", err)
		}
		res.UserAnswers = make([]UserAnswer, 0, len(answers))
		for _, ua := range answers {
			ua.ID = uuid.NewString()
			ua.TestResultID = res.ID
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_answers (id,test_result_id,question_id,answer_id) VALUES ($1,$2,$3,$4)`,
				ua.ID, ua.TestResultID, ua.QuestionID, ua.AnswerID); err != nil {
				return fmt.Errorf("insert user answer: %w", err)
			}
			res.UserAnswers = append(res.UserAnswers, ua)
		}
		return s.events.Append(ctx, tx, syncx.TypeTestResultGraded, res.ID, map[string]any{
			"user_id": res.UserID,
			"test_id": res.TestID,
			"score":   res.Score,
			"passed":  res.IsPassed,
			"answers": len(res.UserAnswers),
		})
	})
	if err != nil {
		return TestResult{}, err
	}
	return res, nil
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (TestResult, error) {
	var r TestResult
	var completed int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,test_id,score,is_passed,completed_at FROM test_results WHERE id=$1`, id).
		Scan(&r.ID, &r.UserID, &r.TestID, &r.Score, &r.IsPassed, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return TestResult{}, fmt.Errorf("test result %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return TestResult{}, err
	}
	r.CompletedAt = time.Unix(completed, 0).UTC()
	byResult, err := s.userAnswers(ctx, []string{r.ID})
	if err != nil {
		return TestResult{}, err
	}
	r.UserAnswers = byResult[r.ID]
	if r.UserAnswers == nil {
		r.UserAnswers = []UserAnswer{}
	}
	return r, nil
}

func (s *SQLStore) ListResults(ctx context.Context, opts ResultListOpts) ([]TestResult, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.UserID != "" {
		add("r.user_id=$%d", opts.UserID)
	}
	if opts.TestID != "" {
		add("r.test_id=$%d", opts.TestID)
	}
	if opts.OwnerID != "" {
		add(`r.test_id IN (SELECT t.id FROM tests t JOIN materials m ON m.id=t.material_id
			JOIN courses c ON c.id=m.course_id WHERE c.owner_id=$%d)`, opts.OwnerID)
	}
	q := `SELECT r.id, r.user_id, r.test_id, r.score, r.is_passed, r.completed_at FROM test_results r`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	q += ` ORDER BY r.completed_at DESC, r.id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []TestResult{}
	ids := []string{}
	for rows.Next() {
		var r TestResult
		var completed int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.TestID, &r.Score, &r.IsPassed, &completed); err != nil {
			rows.Close()
			return nil, err
		}
		r.CompletedAt = time.Unix(completed, 0).UTC()
		out = append(out, r)
		ids = append(ids, r.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byResult, err := s.userAnswers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].UserAnswers = byResult[out[i].ID]
		if out[i].UserAnswers == nil {
			out[i].UserAnswers = []UserAnswer{}
		}
	}
	return out, nil
}

func (s *SQLStore) userAnswers(ctx context.Context, resultIDs []string) (map[string][]UserAnswer, error) {
	out := map[string][]UserAnswer{}
	if len(resultIDs) == 0 {
		return out, nil
	}
	ph := make([]string, len(resultIDs))
	args := make([]any, len(resultIDs))
	for i, id := range resultIDs {
		ph[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ua.id, ua.test_result_id, ua.question_id, ua.answer_id
		  FROM user_answers ua
		  JOIN questions q ON q.id=ua.question_id
		 WHERE ua.test_result_id IN (`+strings.Join(ph, ",")+`)
		 ORDER BY q.ord, q.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ua UserAnswer
		if err := rows.Scan(&ua.ID, &ua.TestResultID, &ua.QuestionID, &ua.AnswerID); err != nil {
			return nil, err
		}
		out[ua.TestResultID] = append(out[ua.TestResultID], ua)
	}
	return out, rows.Err()
}
