package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/rbac"
)

type SQLStore struct {
	db   *sql.DB
	cost int
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore returns a users store over dbh. A cost below bcrypt.MinCost
// selects DefaultCost.
func NewSQLStore(dbh *sql.DB, cost int) *SQLStore {
	return &SQLStore{db: dbh, cost: costOr(cost)}
}

const userCols = `id, username, password_hash, role, created_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.Role = rbac.Role(role)
	return u, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (s *SQLStore) GetByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username=$1`, username))
}

func (s *SQLStore) Upsert(ctx context.Context, rows []Row) (UpsertStats, error) {
	var st UpsertStats
	if len(rows) == 0 {
		return st, nil
	}
	// hash outside the transaction; bcrypt is slow
	ps := make([]prepared, 0, len(rows))
	for _, r := range rows {
		p, err := prepare(r, s.cost)
		if err != nil {
			return st, err
		}
		ps = append(ps, p)
	}

	now := time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range ps {
			id, err := existingID(ctx, tx, p)
			if err != nil {
				return err
			}
			if id != "" {
				if p.Hash != "" {
					_, err = tx.ExecContext(ctx,
						`UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
						p.Username, string(p.Role), p.Hash, id)
				} else {
					_, err = tx.ExecContext(ctx,
						`UPDATE users SET username=$1, role=$2 WHERE id=$3`,
						p.Username, string(p.Role), id)
				}
				if err != nil {
					return fmt.Errorf("update user %s: %w", p.Username, err)
				}
				st.Updated++
				continue
			}
			if p.Hash == "" {
				return fmt.Errorf("%w: password required for new user %s", ErrInvalid, p.Username)
			}
			if p.ID == "" {
				p.ID = newID()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
				p.ID, p.Username, p.Hash, string(p.Role), now); err != nil {
				return fmt.Errorf("insert user %s: %w", p.Username, err)
			}
			st.Inserted++
		}
		return nil
	})
	if err != nil {
		return UpsertStats{}, err
	}
	return st, nil
}

func existingID(ctx context.Context, tx *sql.Tx, p prepared) (string, error) {
	var id string
	var err error
	if p.ID != "" {
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1`, p.ID).Scan(&id)
		if err == nil || !errors.Is(err, sql.ErrNoRows) {
			return id, err
		}
	}
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, p.Username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}
