package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// Store resolves identities for login and role lookup, and accepts bulk
// provisioning from teachers and admins.
type Store interface {
	Get(ctx context.Context, id string) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	// Upsert matches rows by id, then by username. New users need a password.
	// The batch is applied atomically.
	Upsert(ctx context.Context, rows []Row) (UpsertStats, error)
}

// DefaultCost is the bcrypt cost used for new password hashes.
const DefaultCost = 12

func costOr(c int) int {
	if c < bcrypt.MinCost {
		return DefaultCost
	}
	return c
}
