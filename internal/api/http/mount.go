package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/grading"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
	syncx "github.com/mind-engage/mindengage-courses/internal/sync"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

type Deps struct {
	Store   course.Store
	Users   users.Store
	Gate    *rbac.Gate
	Grading *grading.Service
	Log     *slog.Logger

	// Events and EventsDB expose the event log; both nil in memory mode.
	Events   *syncx.EventRepo
	EventsDB syncx.Queryer
}

// MountAPI registers the authenticated routes on r. The caller installs the
// middleware that puts the actor in the request context.
func MountAPI(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r.Post("/tests/{testID}/submit", SubmitTestHandler(d.Grading, log))
	r.With(rbac.Require("test:view")).
		Get("/tests/{testID}", GetTestHandler(d.Store, d.Gate, log))
	r.With(rbac.Require("test:manage_own")).
		Put("/tests/{testID}", PutTestHandler(d.Store, d.Gate, log))

	r.With(rbac.Require("course:create")).
		Post("/courses", CreateCourseHandler(d.Store, log))
	r.With(rbac.Require("material:manage_own")).
		Put("/materials/{materialID}", PutMaterialHandler(d.Store, log))

	r.Post("/courses/{courseID}/enroll", EnrollHandler(d.Store, log))
	r.With(rbac.Require("course:delete_own")).
		Delete("/courses/{courseID}", DeleteCourseHandler(d.Store, log))

	r.With(rbac.RequireAny("result:view-own", "result:view-course")).
		Get("/test-results", ListResultsHandler(d.Store, log))
	r.With(rbac.RequireAny("result:view-own", "result:view-course")).
		Get("/test-results/{resultID}", GetResultHandler(d.Store, log))

	r.With(rbac.Require("users:bulk_upsert")).
		Post("/users/bulk", BulkUpsertUsersHandler(d.Users, log))

	if d.Events != nil && d.EventsDB != nil {
		r.With(rbac.Require("events:read")).
			Get("/events", EventsHandler(d.Events, d.EventsDB, log))
	}
}
