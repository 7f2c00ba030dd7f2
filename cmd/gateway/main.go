package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-courses/internal/api/http"
	auth "github.com/mind-engage/mindengage-courses/internal/auth/middleware"
	"github.com/mind-engage/mindengage-courses/internal/config"
	"github.com/mind-engage/mindengage-courses/internal/course"
	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/grading"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
	syncx "github.com/mind-engage/mindengage-courses/internal/sync"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// --- Storage ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		store    course.Store
		userRepo users.Store
		events   *syncx.EventRepo
		dbh      *sql.DB
	)
	if cfg.DBDriver == "memory" {
		store = course.NewInMemoryStore()
		userRepo = users.NewInMemoryStore(users.DefaultCost)
	} else {
		drv, err := db.ParseDriver(cfg.DBDriver)
		if err != nil {
			return err
		}
		dbh, err = db.Open(ctx, drv, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer dbh.Close()
		events = syncx.NewEventRepo(cfg.SiteID)
		store = course.NewSQLStore(dbh, events)
		userRepo = users.NewSQLStore(dbh, users.DefaultCost)
	}

	if cfg.BootstrapAdminPassword != "" {
		if err := bootstrapAdmin(ctx, userRepo, cfg.BootstrapAdminPassword); err != nil {
			return err
		}
	}

	// --- Services ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	gate := rbac.NewGate(store)
	engine := grading.NewEngine(store, grading.WithLogger(logger))
	submissions := grading.NewService(store, gate, engine, logger)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, userRepo, logger))
	}

	// Protected API (JWT → stored role → RBAC / gate)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRole(userRepo, cfg.Mode == config.ModeOffline, logger))
		deps := api.Deps{
			Store:   store,
			Users:   userRepo,
			Gate:    gate,
			Grading: submissions,
			Log:     logger,
			Events:  events,
		}
		if dbh != nil {
			deps.EventsDB = dbh
		}
		api.MountAPI(pr, deps)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if dbh != nil {
			if err := dbh.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func bootstrapAdmin(ctx context.Context, s users.Store, password string) error {
	if _, err := s.GetByUsername(ctx, "admin"); err == nil {
		return nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return err
	}
	_, err := s.Upsert(ctx, []users.Row{{Username: "admin", Role: string(rbac.RoleAdmin), Password: password}})
	return err
}
