package rbac

import (
	"context"
	"fmt"

	"github.com/mind-engage/mindengage-courses/internal/course"
)

// CodeForbidden classifies every denial; the HTTP layer maps it to 403.
const CodeForbidden = "forbidden"

const (
	ReasonSubmitRole   = "only students can take tests"
	ReasonNotEnrolled  = "you are not enrolled in the course of this test"
	ReasonManageTest   = "insufficient rights to manage this test"
	ReasonManageCourse = "you are not the owner of this course"
	ReasonViewResult   = "insufficient rights to view this result"
	ReasonEnrollRole   = "only students can enroll in a course"
	ReasonUnknownRole  = "unknown role"
)

// Decision is the outcome of an authorization check. A denial is a value,
// not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason string) Decision {
	return Decision{Code: CodeForbidden, Reason: reason}
}

// Facts are the content-store lookups the gate depends on.
type Facts interface {
	CourseOfTest(ctx context.Context, testID string) (course.CourseRef, error)
	IsEnrolled(ctx context.Context, courseID, userID string) (bool, error)
}

// Gate answers object-level questions (enrollment, ownership) that the
// role-permission table cannot.
type Gate struct {
	facts Facts
}

func NewGate(f Facts) *Gate { return &Gate{facts: f} }

// AuthorizeSubmission decides whether actor may submit answers for testID.
// Only enrolled students pass; admins and teachers are always denied. The
// error return is reserved for lookup failures, including course.ErrNotFound.
func (g *Gate) AuthorizeSubmission(ctx context.Context, actor Actor, testID string) (Decision, error) {
	switch actor.Role {
	case RoleStudent:
	case RoleAdmin, RoleTeacher:
		return Deny(ReasonSubmitRole), nil
	default:
		return Deny(ReasonUnknownRole), nil
	}
	ref, err := g.facts.CourseOfTest(ctx, testID)
	if err != nil {
		return Decision{}, err
	}
	ok, err := g.facts.IsEnrolled(ctx, ref.CourseID, actor.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("enrollment lookup: %w", err)
	}
	if !ok {
		return Deny(ReasonNotEnrolled), nil
	}
	return Allow(), nil
}

// AuthorizeManage decides whether actor may edit or delete testID:
// admins always, teachers only within courses they own.
func (g *Gate) AuthorizeManage(ctx context.Context, actor Actor, testID string) (Decision, error) {
	switch actor.Role {
	case RoleAdmin:
		return Allow(), nil
	case RoleTeacher:
	case RoleStudent:
		return Deny(ReasonManageTest), nil
	default:
		return Deny(ReasonUnknownRole), nil
	}
	ref, err := g.facts.CourseOfTest(ctx, testID)
	if err != nil {
		return Decision{}, err
	}
	if ref.OwnerID != actor.ID {
		return Deny(ReasonManageTest), nil
	}
	return Allow(), nil
}

// CanManageCourse is the ownership rule for course-level writes.
func CanManageCourse(actor Actor, ownerID string) Decision {
	switch actor.Role {
	case RoleAdmin:
		return Allow()
	case RoleTeacher:
		if ownerID == actor.ID {
			return Allow()
		}
		return Deny(ReasonManageCourse)
	case RoleStudent:
		return Deny(ReasonManageCourse)
	default:
		return Deny(ReasonUnknownRole)
	}
}

// CanViewResult: admins see everything, teachers see results in courses they
// own, students see only their own results.
func CanViewResult(actor Actor, r course.TestResult, courseOwnerID string) Decision {
	switch actor.Role {
	case RoleAdmin:
		return Allow()
	case RoleTeacher:
		if courseOwnerID == actor.ID {
			return Allow()
		}
	case RoleStudent:
		if r.UserID == actor.ID {
			return Allow()
		}
	default:
		return Deny(ReasonUnknownRole)
	}
	return Deny(ReasonViewResult)
}

func CanEnroll(actor Actor) Decision {
	switch actor.Role {
	case RoleStudent:
		return Allow()
	case RoleAdmin, RoleTeacher:
		return Deny(ReasonEnrollRole)
	default:
		return Deny(ReasonUnknownRole)
	}
}
