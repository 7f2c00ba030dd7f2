package users

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	mu   sync.RWMutex
	byID map[string]User
	cost int
}

// NewInMemoryStore is the offline users store.
func NewInMemoryStore(cost int) Store {
	return &memoryStore{byID: map[string]User{}, cost: costOr(cost)}
}

func (m *memoryStore) Get(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryStore) GetByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.findByUsername(username); ok {
		return u, nil
	}
	return User{}, ErrNotFound
}

func (m *memoryStore) findByUsername(username string) (User, bool) {
	for _, u := range m.byID {
		if u.Username == username {
			return u, true
		}
	}
	return User{}, false
}

func (m *memoryStore) Upsert(_ context.Context, rows []Row) (UpsertStats, error) {
	var st UpsertStats
	ps := make([]prepared, 0, len(rows))
	for _, r := range rows {
		p, err := prepare(r, m.cost)
		if err != nil {
			return st, err
		}
		ps = append(ps, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// stage on a copy so a failing row leaves the store untouched
	next := make(map[string]User, len(m.byID)+len(ps))
	for k, v := range m.byID {
		next[k] = v
	}
	now := time.Now().Unix()
	for _, p := range ps {
		cur, ok := next[p.ID]
		if !ok {
			for _, u := range next {
				if u.Username == p.Username {
					cur, ok = u, true
					break
				}
			}
		}
		for _, u := range next {
			if u.Username == p.Username && (!ok || u.ID != cur.ID) {
				return UpsertStats{}, fmt.Errorf("%w: username %s taken", ErrInvalid, p.Username)
			}
		}
		if ok {
			cur.Username, cur.Role = p.Username, p.Role
			if p.Hash != "" {
				cur.PasswordHash = p.Hash
			}
			next[cur.ID] = cur
			st.Updated++
			continue
		}
		if p.Hash == "" {
			return UpsertStats{}, fmt.Errorf("%w: password required for new user %s", ErrInvalid, p.Username)
		}
		if p.ID == "" {
			p.ID = newID()
		}
		next[p.ID] = User{ID: p.ID, Username: p.Username, PasswordHash: p.Hash, Role: p.Role, CreatedAt: now}
		st.Inserted++
	}
	m.byID = next
	return st, nil
}
