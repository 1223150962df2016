package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/alpha-starter/backend/internal/model"
)

// MemoryStore keeps every record in process memory. A store-wide mutex
// serializes access; WithTx holds it for the whole unit of work and restores
// a snapshot when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	users    map[string]model.User
	refresh  map[string]model.RefreshToken
	oneTimes map[string]model.OneTimeToken
}

func newMemData() *memData {
	return &memData{
		users:    make(map[string]model.User),
		refresh:  make(map[string]model.RefreshToken),
		oneTimes: make(map[string]model.OneTimeToken),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.refresh {
		c.refresh[k] = v
	}
	for k, v := range d.oneTimes {
		c.oneTimes[k] = v
	}
	return c
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, memTx{store: s})
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// memTx reads s.data on every call so a rollback inside WithTx is observed.
type memTx struct {
	store *MemoryStore
}

func (t memTx) CreateUser(_ context.Context, user *model.User) error {
	return t.store.data.createUser(user)
}

func (t memTx) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return t.store.data.userByEmail(email)
}

func (t memTx) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return t.store.data.userByID(id)
}

func (t memTx) UpdateUser(_ context.Context, user *model.User) error {
	return t.store.data.updateUser(user)
}

func (t memTx) DeleteUser(_ context.Context, id string) error {
	return t.store.data.deleteUser(id)
}

func (t memTx) CreateRefreshToken(_ context.Context, token *model.RefreshToken) error {
	return t.store.data.createRefresh(token)
}

func (t memTx) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	return t.store.data.refreshByHash(tokenHash)
}

func (t memTx) RevokeRefreshToken(_ context.Context, id string) error {
	return t.store.data.revokeRefresh(id)
}

func (t memTx) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	t.store.data.revokeUserRefresh(userID)
	return nil
}

func (t memTx) CreateOneTimeToken(_ context.Context, token *model.OneTimeToken) error {
	return t.store.data.createOneTime(token)
}

func (t memTx) GetOneTimeTokenByHash(_ context.Context, kind model.TokenKind, tokenHash string) (*model.OneTimeToken, error) {
	return t.store.data.oneTimeByHash(kind, tokenHash)
}

func (t memTx) MarkOneTimeTokenUsed(_ context.Context, id string) (bool, error) {
	return t.store.data.markUsed(id), nil
}

func (s *MemoryStore) locked(fn func(repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(memTx{store: s})
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	return s.locked(func(r Repository) error { return r.CreateUser(ctx, user) })
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (user *model.User, err error) {
	err = s.locked(func(r Repository) error {
		user, err = r.GetUserByEmail(ctx, email)
		return err
	})
	return user, err
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (user *model.User, err error) {
	err = s.locked(func(r Repository) error {
		user, err = r.GetUserByID(ctx, id)
		return err
	})
	return user, err
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *model.User) error {
	return s.locked(func(r Repository) error { return r.UpdateUser(ctx, user) })
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	return s.locked(func(r Repository) error { return r.DeleteUser(ctx, id) })
}

func (s *MemoryStore) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return s.locked(func(r Repository) error { return r.CreateRefreshToken(ctx, token) })
}

func (s *MemoryStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (token *model.RefreshToken, err error) {
	err = s.locked(func(r Repository) error {
		token, err = r.GetRefreshTokenByHash(ctx, tokenHash)
		return err
	})
	return token, err
}

func (s *MemoryStore) RevokeRefreshToken(ctx context.Context, id string) error {
	return s.locked(func(r Repository) error { return r.RevokeRefreshToken(ctx, id) })
}

func (s *MemoryStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return s.locked(func(r Repository) error { return r.RevokeUserRefreshTokens(ctx, userID) })
}

func (s *MemoryStore) CreateOneTimeToken(ctx context.Context, token *model.OneTimeToken) error {
	return s.locked(func(r Repository) error { return r.CreateOneTimeToken(ctx, token) })
}

func (s *MemoryStore) GetOneTimeTokenByHash(ctx context.Context, kind model.TokenKind, tokenHash string) (token *model.OneTimeToken, err error) {
	err = s.locked(func(r Repository) error {
		token, err = r.GetOneTimeTokenByHash(ctx, kind, tokenHash)
		return err
	})
	return token, err
}

func (s *MemoryStore) MarkOneTimeTokenUsed(ctx context.Context, id string) (ok bool, err error) {
	err = s.locked(func(r Repository) error {
		ok, err = r.MarkOneTimeTokenUsed(ctx, id)
		return err
	})
	return ok, err
}

func (d *memData) createUser(user *model.User) error {
	if _, ok := d.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, u := range d.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	d.users[user.ID] = *user
	return nil
}

func (d *memData) userByEmail(email string) (*model.User, error) {
	for _, u := range d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) userByID(id string) (*model.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *memData) updateUser(user *model.User) error {
	if _, ok := d.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, u := range d.users {
		if id != user.ID && u.Email == user.Email {
			return ErrDuplicate
		}
	}
	d.users[user.ID] = *user
	return nil
}

func (d *memData) deleteUser(id string) error {
	if _, ok := d.users[id]; !ok {
		return ErrNotFound
	}
	delete(d.users, id)
	for k, t := range d.refresh {
		if t.UserID == id {
			delete(d.refresh, k)
		}
	}
	for k, t := range d.oneTimes {
		if t.UserID == id {
			delete(d.oneTimes, k)
		}
	}
	return nil
}

func (d *memData) createRefresh(token *model.RefreshToken) error {
	if _, ok := d.users[token.UserID]; !ok {
		return ErrNotFound
	}
	for id, t := range d.refresh {
		if id == token.ID || t.TokenHash == token.TokenHash {
			return ErrDuplicate
		}
	}
	d.refresh[token.ID] = *token
	return nil
}

func (d *memData) refreshByHash(tokenHash string) (*model.RefreshToken, error) {
	for _, t := range d.refresh {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) revokeRefresh(id string) error {
	t, ok := d.refresh[id]
	if !ok {
		return ErrNotFound
	}
	t.Revoked = true
	d.refresh[id] = t
	return nil
}

func (d *memData) revokeUserRefresh(userID string) {
	for id, t := range d.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			d.refresh[id] = t
		}
	}
}

func (d *memData) createOneTime(token *model.OneTimeToken) error {
	if !token.Kind.Valid() {
		return fmt.Errorf("insert one-time token: %w %q", ErrUnknownKind, token.Kind)
	}
	if _, ok := d.users[token.UserID]; !ok {
		return ErrNotFound
	}
	for id, t := range d.oneTimes {
		if id == token.ID || (t.Kind == token.Kind && t.TokenHash == token.TokenHash) {
			return ErrDuplicate
		}
	}
	d.oneTimes[token.ID] = *token
	return nil
}

func (d *memData) oneTimeByHash(kind model.TokenKind, tokenHash string) (*model.OneTimeToken, error) {
	for _, t := range d.oneTimes {
		if t.Kind == kind && t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) markUsed(id string) bool {
	t, ok := d.oneTimes[id]
	if !ok || t.Used {
		return false
	}
	t.Used = true
	d.oneTimes[id] = t
	return true
}
