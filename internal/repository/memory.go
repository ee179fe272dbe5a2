package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/valora-connect/internal/domain"
	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// MemoryConnectionStore keeps connections in process memory. It backs tests and
// STORE_DRIVER=memory; nothing survives a restart.
type MemoryConnectionStore struct {
	mu      sync.Mutex
	node    *snowflake.Node
	now     func() time.Time
	records map[int64]*connection.PendingConnection
}

var _ ConnectionStore = (*MemoryConnectionStore)(nil)

// NewMemoryConnectionStore constructs an empty store issuing ids from node.
func NewMemoryConnectionStore(node *snowflake.Node) *MemoryConnectionStore {
	return &MemoryConnectionStore{
		node:    node,
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[int64]*connection.PendingConnection),
	}
}

func (s *MemoryConnectionStore) Create(_ context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	tenantID = connection.NormalizeTenant(tenantID)
	nonce = strings.TrimSpace(nonce)
	if tenantID == "" || nonce == "" {
		return nil, fmt.Errorf("create connection: %w", connection.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.TenantID == tenantID && rec.Nonce == nonce && rec.Pending() {
			return nil, StorageError("create connection", fmt.Errorf("pending nonce already issued for %s", tenantID))
		}
	}

	rec := &connection.PendingConnection{
		ID:        s.node.Generate().Int64(),
		TenantID:  tenantID,
		Nonce:     nonce,
		CreatedAt: s.now(),
		Active:    true,
	}
	s.records[rec.ID] = rec
	out := *rec
	return &out, nil
}

func (s *MemoryConnectionStore) FindPending(_ context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return s.newest(tenantID, nonce, func(rec *connection.PendingConnection) bool {
		return rec.Pending()
	}), nil
}

func (s *MemoryConnectionStore) FindLatest(_ context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return s.newest(tenantID, nonce, func(rec *connection.PendingConnection) bool {
		return !rec.Deleted()
	}), nil
}

func (s *MemoryConnectionStore) Complete(_ context.Context, record *connection.PendingConnection, accessToken string) error {
	if record == nil || strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("complete connection: %w", connection.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[record.ID]
	if !ok || rec.Deleted() {
		return fmt.Errorf("complete connection %d: %w", record.ID, connection.ErrNotFound)
	}
	if rec.Completed() {
		return fmt.Errorf("complete connection %d: %w", record.ID, connection.ErrAlreadyCompleted)
	}
	if !rec.Active {
		return fmt.Errorf("complete connection %d: %w", record.ID, connection.ErrNotFound)
	}

	now := s.now()
	rec.AccessToken = accessToken
	rec.UpdatedAt = &now
	rec.Active = false

	for id, other := range s.records {
		if id != rec.ID && other.TenantID == rec.TenantID && other.Pending() {
			other.Active = false
			other.UpdatedAt = &now
		}
	}

	*record = *rec
	return nil
}

func (s *MemoryConnectionStore) Abandon(_ context.Context, record *connection.PendingConnection) error {
	if record == nil {
		return fmt.Errorf("abandon connection: %w", connection.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[record.ID]
	if !ok || rec.Deleted() {
		return fmt.Errorf("abandon connection %d: %w", record.ID, connection.ErrNotFound)
	}
	if !rec.Pending() {
		return nil
	}
	now := s.now()
	rec.Active = false
	rec.UpdatedAt = &now
	*record = *rec
	return nil
}

func (s *MemoryConnectionStore) newest(tenantID, nonce string, keep func(*connection.PendingConnection) bool) *connection.PendingConnection {
	tenantID = connection.NormalizeTenant(tenantID)
	nonce = strings.TrimSpace(nonce)

	s.mu.Lock()
	defer s.mu.Unlock()

	var best *connection.PendingConnection
	for _, rec := range s.records {
		if rec.TenantID != tenantID || rec.Nonce != nonce || !keep(rec) {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) ||
			(rec.CreatedAt.Equal(best.CreatedAt) && rec.ID > best.ID) {
			best = rec
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// MemoryUserRepo is the in-process UserRepository paired with MemoryConnectionStore.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	node  *snowflake.Node
	users map[string]domain.LoginUser
}

var _ UserRepository = (*MemoryUserRepo)(nil)

func NewMemoryUserRepo(node *snowflake.Node) *MemoryUserRepo {
	return &MemoryUserRepo{node: node, users: make(map[string]domain.LoginUser)}
}

func (r *MemoryUserRepo) GetByUsername(_ context.Context, username string) (domain.LoginUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return domain.LoginUser{}, fmt.Errorf("get user: %w", ErrUserNotFound)
	}
	return user, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, user domain.LoginUser) (domain.LoginUser, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return domain.LoginUser{}, fmt.Errorf("create user: %w", connection.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return domain.LoginUser{}, fmt.Errorf("create user %s: duplicate username", user.Username)
	}
	if user.ID == 0 {
		user.ID = r.node.Generate().Int64()
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.Username] = user
	return user, nil
}
