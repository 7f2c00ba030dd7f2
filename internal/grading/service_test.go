package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

func newService(t *testing.T) (*Service, course.Store) {
	t.Helper()
	ctx := context.Background()
	s := course.NewInMemoryStore()
	if err := s.PutCourse(ctx, course.Course{ID: "c1", Title: "Go", OwnerID: "teach"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutMaterial(ctx, course.Material{ID: "m1", CourseID: "c1", Order: 1}); err != nil {
		t.Fatal(err)
	}
	q := quiz(70)
	q.MaterialID = "m1"
	if _, err := s.PutTest(ctx, q); err != nil {
		t.Fatal(err)
	}
	if err := s.Enroll(ctx, "c1", "stu"); err != nil {
		t.Fatal(err)
	}
	svc := NewService(s, rbac.NewGate(s), NewEngine(s, WithLogger(quietLog)), quietLog)
	return svc, s
}

func TestSubmitEnrolledStudent(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	stu := rbac.Actor{ID: "stu", Role: rbac.RoleStudent}

	got, err := svc.Submit(ctx, stu, "t1", []Pair{{"q1", "a11"}, {"q2", "a22"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Score != 33 || got.Passed || got.CorrectAnswers != 1 || got.TotalQuestions != 3 {
		t.Fatalf("first attempt = %+v", got)
	}

	got, err = svc.Submit(ctx, stu, "t1", []Pair{{"q1", "a11"}, {"q2", "a21"}, {"q3", "a31"}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if got.Score != 100 || !got.Passed {
		t.Fatalf("second attempt = %+v", got)
	}

	rs, err := s.ListResults(ctx, course.ResultListOpts{UserID: "stu"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 1 {
		t.Fatalf("expected a single result after resubmission, got %d", len(rs))
	}
	if rs[0].Score != 100 || len(rs[0].UserAnswers) != 3 {
		t.Errorf("stored result = %+v", rs[0])
	}
}

func TestSubmitDenied(t *testing.T) {
	tests := []struct {
		name   string
		actor  rbac.Actor
		reason string
	}{
		{"teacher", rbac.Actor{ID: "teach", Role: rbac.RoleTeacher}, rbac.ReasonSubmitRole},
		{"admin", rbac.Actor{ID: "root", Role: rbac.RoleAdmin}, rbac.ReasonSubmitRole},
		{"not enrolled", rbac.Actor{ID: "stranger", Role: rbac.RoleStudent}, rbac.ReasonNotEnrolled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := newService(t)
			_, err := svc.Submit(context.Background(), tt.actor, "t1", []Pair{{"q1", "a11"}})
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("err = %v, want ErrForbidden", err)
			}
			var de *DeniedError
			if !errors.As(err, &de) || de.Reason != tt.reason {
				t.Fatalf("err = %#v, want reason %q", err, tt.reason)
			}
			rs, _ := s.ListResults(context.Background(), course.ResultListOpts{})
			if len(rs) != 0 {
				t.Errorf("denied submission stored %d results", len(rs))
			}
		})
	}
}

func TestSubmitUnknownTest(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Submit(context.Background(), rbac.Actor{ID: "stu", Role: rbac.RoleStudent}, "missing", nil)
	if !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
