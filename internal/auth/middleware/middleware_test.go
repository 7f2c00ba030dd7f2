package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-courses/internal/rbac"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func seededUsers(t *testing.T) users.Store {
	t.Helper()
	s := users.NewInMemoryStore(bcrypt.MinCost)
	_, err := s.Upsert(context.Background(), []users.Row{
		{ID: "u-stu", Username: "stu", Role: "student", Password: "secret"},
		{ID: "u-teach", Username: "teach", Role: "teacher", Password: "secret"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// echoActor writes the context actor as "id:role".
var echoActor = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	a, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "no actor", http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, a.ID+":"+string(a.Role))
})

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("k")
	tok, err := a.IssueJWT(rbac.Actor{ID: "u1", Role: rbac.RoleTeacher})
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.Parse(tok)
	if err != nil {
		t.Fatal(err)
	}
	if got != (rbac.Actor{ID: "u1", Role: rbac.RoleTeacher}) {
		t.Errorf("actor = %+v", got)
	}

	if _, err := NewAuthService("other").Parse(tok); err == nil {
		t.Error("token signed with another key accepted")
	}

	late := NewAuthService("k")
	late.now = func() time.Time { return time.Now().Add(tokenTTL + time.Minute) }
	if _, err := late.Parse(tok); err == nil {
		t.Error("expired token accepted")
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	a := NewAuthService("k")
	tok, err := a.IssueJWT(rbac.Actor{ID: "u1", Role: rbac.Role("guest")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Parse(tok); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("k")
	tok, _ := a.IssueJWT(rbac.Actor{ID: "u1", Role: rbac.RoleStudent})
	h := JWTMiddleware(a)(echoActor)

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + tok, http.StatusOK, "u1:student"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	a := NewAuthService("k")
	h := LoginHandler(a, seededUsers(t), quietLog)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"ok", `{"username":"stu","password":"secret"}`, http.StatusOK},
		{"wrong password", `{"username":"stu","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"who","password":"secret"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"stu"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var out map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			actor, err := a.Parse(out["access_token"])
			if err != nil {
				t.Fatal(err)
			}
			if actor.ID != "u-stu" || actor.Role != rbac.RoleStudent {
				t.Errorf("token actor = %+v", actor)
			}
		})
	}
}

func TestAttachRole(t *testing.T) {
	store := seededUsers(t)
	// promote stu after a token was issued
	if _, err := store.Upsert(context.Background(), []users.Row{{ID: "u-stu", Username: "stu", Role: "teacher"}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		claim    rbac.Actor
		fallback bool
		code     int
		body     string
	}{
		{"stored role wins", rbac.Actor{ID: "u-stu", Role: rbac.RoleStudent}, false, http.StatusOK, "u-stu:teacher"},
		{"unknown subject denied", rbac.Actor{ID: "ghost", Role: rbac.RoleAdmin}, false, http.StatusForbidden, ""},
		{"unknown subject with fallback", rbac.Actor{ID: "ghost", Role: rbac.RoleAdmin}, true, http.StatusOK, "ghost:admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AttachRole(store, tt.fallback, quietLog)(echoActor)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(rbac.WithActor(req.Context(), tt.claim))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestAttachRoleRequiresActor(t *testing.T) {
	rec := httptest.NewRecorder()
	AttachRole(seededUsers(t), true, quietLog)(echoActor).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d", rec.Code)
	}
}
