package users

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

var (
	ErrNotFound = errors.New("user not found")
	ErrInvalid  = errors.New("invalid user")
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"`
	CreatedAt    int64     `json:"created_at"`
}

// Actor is the authorization view of u.
func (u User) Actor() rbac.Actor { return rbac.Actor{ID: u.ID, Role: u.Role} }

// CheckPassword reports whether pw matches the stored hash.
func (u User) CheckPassword(pw string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pw)) == nil
}

// Row is one entry of a bulk upsert. Password is plaintext and optional for
// existing users; it is hashed before storage.
type Row struct {
	ID       string `json:"id"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
}

// UpsertStats counts what a bulk upsert did.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// prepared is a validated Row with its password hashed.
type prepared struct {
	ID       string
	Username string
	Role     rbac.Role
	Hash     string
}

func prepare(r Row, cost int) (prepared, error) {
	p := prepared{ID: strings.TrimSpace(r.ID), Username: strings.TrimSpace(r.Username)}
	if p.Username == "" {
		return p, fmt.Errorf("%w: username required", ErrInvalid)
	}
	role := r.Role
	if strings.TrimSpace(role) == "" {
		role = string(rbac.RoleStudent)
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return p, fmt.Errorf("%w: %s: %v", ErrInvalid, p.Username, err)
	}
	p.Role = parsed
	if r.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(r.Password), cost)
		if err != nil {
			return p, fmt.Errorf("hash password for %s: %w", p.Username, err)
		}
		p.Hash = string(b)
	}
	return p, nil
}

func newID() string { return uuid.NewString() }
