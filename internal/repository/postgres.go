package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/valora-connect/internal/domain"
	"github.com/smallbiznis/valora-connect/internal/domain/connection"
)

// Compile-time interface assertions.
var (
	_ ConnectionStore = (*PostgresConnectionStore)(nil)
	_ UserRepository  = (*PostgresUserRepo)(nil)
)

const connectionColumns = `id, shop, nonce, access_token, created_at, updated_at, deleted_at, active`

const insertConnectionSQL = `INSERT INTO shop_connections (id, shop, nonce, active)
VALUES ($1, $2, $3, true)
RETURNING ` + connectionColumns

const findPendingConnectionSQL = `SELECT ` + connectionColumns + `
FROM shop_connections
WHERE shop = $1 AND nonce = $2 AND active AND access_token IS NULL AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`

const findLatestConnectionSQL = `SELECT ` + connectionColumns + `
FROM shop_connections
WHERE shop = $1 AND nonce = $2 AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`

const completeConnectionSQL = `UPDATE shop_connections
SET access_token = $2, updated_at = now(), active = false
WHERE id = $1 AND active AND access_token IS NULL AND deleted_at IS NULL
RETURNING updated_at`

const connectionCompletedSQL = `SELECT access_token IS NOT NULL
FROM shop_connections
WHERE id = $1 AND deleted_at IS NULL`

const supersedeConnectionsSQL = `UPDATE shop_connections
SET active = false, updated_at = now()
WHERE shop = $1 AND id <> $2 AND active AND access_token IS NULL AND deleted_at IS NULL`

const abandonConnectionSQL = `UPDATE shop_connections
SET active = false, updated_at = now()
WHERE id = $1 AND active AND access_token IS NULL AND deleted_at IS NULL
RETURNING updated_at`

// PostgresConnectionStore implements ConnectionStore on pgx.
type PostgresConnectionStore struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresConnectionStore(pool *pgxpool.Pool, node *snowflake.Node) *PostgresConnectionStore {
	return &PostgresConnectionStore{db: pool, node: node}
}

func (r *PostgresConnectionStore) Create(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	tenantID = connection.NormalizeTenant(tenantID)
	nonce = strings.TrimSpace(nonce)
	if tenantID == "" || nonce == "" {
		return nil, fmt.Errorf("create connection: %w", connection.ErrValidation)
	}

	row := r.db.QueryRow(ctx, insertConnectionSQL, r.node.Generate().Int64(), tenantID, nonce)
	rec, err := scanConnection(row)
	if err != nil {
		return nil, StorageError("insert connection", err)
	}
	return rec, nil
}

func (r *PostgresConnectionStore) FindPending(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return r.findOne(ctx, findPendingConnectionSQL, tenantID, nonce)
}

func (r *PostgresConnectionStore) FindLatest(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return r.findOne(ctx, findLatestConnectionSQL, tenantID, nonce)
}

func (r *PostgresConnectionStore) findOne(ctx context.Context, query, tenantID, nonce string) (*connection.PendingConnection, error) {
	row := r.db.QueryRow(ctx, query, connection.NormalizeTenant(tenantID), strings.TrimSpace(nonce))
	rec, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, StorageError("find connection", err)
	}
	return rec, nil
}

func (r *PostgresConnectionStore) Complete(ctx context.Context, record *connection.PendingConnection, accessToken string) error {
	if record == nil || strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("complete connection: %w", connection.ErrValidation)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return StorageError("begin complete", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var updatedAt time.Time
	err = tx.QueryRow(ctx, completeConnectionSQL, record.ID, accessToken).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.explainMissedComplete(ctx, tx, record.ID)
	}
	if err != nil {
		return StorageError("complete connection", err)
	}

	if _, err := tx.Exec(ctx, supersedeConnectionsSQL, record.TenantID, record.ID); err != nil {
		return StorageError("supersede connections", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return StorageError("commit complete", err)
	}

	record.AccessToken = accessToken
	record.UpdatedAt = &updatedAt
	record.Active = false
	return nil
}

func (r *PostgresConnectionStore) explainMissedComplete(ctx context.Context, tx pgx.Tx, id int64) error {
	var completed bool
	err := tx.QueryRow(ctx, connectionCompletedSQL, id).Scan(&completed)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("complete connection %d: %w", id, connection.ErrNotFound)
	case err != nil:
		return StorageError("inspect connection", err)
	case completed:
		return fmt.Errorf("complete connection %d: %w", id, connection.ErrAlreadyCompleted)
	default:
		return fmt.Errorf("complete connection %d: %w", id, connection.ErrNotFound)
	}
}

func (r *PostgresConnectionStore) Abandon(ctx context.Context, record *connection.PendingConnection) error {
	if record == nil {
		return fmt.Errorf("abandon connection: %w", connection.ErrValidation)
	}
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, abandonConnectionSQL, record.ID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return StorageError("abandon connection", err)
	}
	record.Active = false
	record.UpdatedAt = &updatedAt
	return nil
}

func scanConnection(row pgx.Row) (*connection.PendingConnection, error) {
	var (
		rec         connection.PendingConnection
		accessToken *string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.Nonce,
		&accessToken,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.DeletedAt,
		&rec.Active,
	); err != nil {
		return nil, err
	}
	if accessToken != nil {
		rec.AccessToken = *accessToken
	}
	return &rec, nil
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresUserRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool, node: node}
}

const userColumns = `id, username, password_hash, status, created_at, updated_at`

const selectUserByUsernameSQL = `SELECT ` + userColumns + ` FROM login_users WHERE username = $1`

const insertUserSQL = `INSERT INTO login_users (id, username, password_hash, status)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (domain.LoginUser, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserByUsernameSQL, strings.ToLower(strings.TrimSpace(username))))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LoginUser{}, fmt.Errorf("get user: %w", ErrUserNotFound)
	}
	if err != nil {
		return domain.LoginUser{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.LoginUser) (domain.LoginUser, error) {
	if user.ID == 0 {
		user.ID = r.node.Generate().Int64()
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	created, err := scanUser(r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		strings.ToLower(strings.TrimSpace(user.Username)),
		user.PasswordHash,
		user.Status,
	))
	if err != nil {
		return domain.LoginUser{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func scanUser(row pgx.Row) (domain.LoginUser, error) {
	var u domain.LoginUser
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
