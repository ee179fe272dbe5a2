package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-connect/internal/domain/connection"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// Keys share the {tenant} hash tag so every script touches a single slot.
const keyPrefix = "connection:"

var createScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  local raw = redis.call('GET', ARGV[4] .. id)
  if raw then
    local rec = cjson.decode(raw)
    if rec.active and rec.access_token == '' and rec.deleted_at == 0 then
      return redis.error_reply('pending nonce already issued')
    end
  end
end
redis.call('SET', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('SADD', KEYS[3], ARGV[3])
return 1
`)

var completeScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 'not_found' end
local rec = cjson.decode(raw)
if rec.deleted_at ~= 0 then return 'not_found' end
if rec.access_token ~= '' then return 'completed' end
if not rec.active then return 'not_found' end
local now = tonumber(ARGV[2])
rec.access_token = ARGV[1]
rec.updated_at = now
rec.active = false
redis.call('SET', KEYS[1], cjson.encode(rec))
local ids = redis.call('SMEMBERS', KEYS[2])
for _, id in ipairs(ids) do
  local key = ARGV[3] .. id
  if key ~= KEYS[1] then
    local otherRaw = redis.call('GET', key)
    if otherRaw then
      local other = cjson.decode(otherRaw)
      if other.active and other.access_token == '' and other.deleted_at == 0 then
        other.active = false
        other.updated_at = now
        redis.call('SET', key, cjson.encode(other))
      end
    end
  end
end
return 'ok'
`)

var abandonScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 'not_found' end
local rec = cjson.decode(raw)
if rec.deleted_at ~= 0 then return 'not_found' end
if (not rec.active) or rec.access_token ~= '' then return 'noop' end
rec.active = false
rec.updated_at = tonumber(ARGV[1])
redis.call('SET', KEYS[1], cjson.encode(rec))
return 'ok'
`)

// redisRecord is the stored JSON shape; times are unix milliseconds, zero when unset.
type redisRecord struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Nonce       string `json:"nonce"`
	AccessToken string `json:"access_token"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	DeletedAt   int64  `json:"deleted_at"`
	Active      bool   `json:"active"`
}

// RedisConnectionStore implements ConnectionStore backed by Redis.
type RedisConnectionStore struct {
	client redis.UniversalClient
	node   *snowflake.Node
	now    func() time.Time
}

var _ repository.ConnectionStore = (*RedisConnectionStore)(nil)

// NewRedisConnectionStore constructs a Redis-backed connection store.
func NewRedisConnectionStore(client redis.UniversalClient, node *snowflake.Node) *RedisConnectionStore {
	return &RedisConnectionStore{
		client: client,
		node:   node,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisConnectionStore) Create(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	tenantID = connection.NormalizeTenant(tenantID)
	nonce = strings.TrimSpace(nonce)
	if tenantID == "" || nonce == "" {
		return nil, fmt.Errorf("create connection: %w", connection.ErrValidation)
	}

	id := s.node.Generate().Int64()
	createdAt := s.now().UnixMilli()
	rec := redisRecord{
		ID:        strconv.FormatInt(id, 10),
		TenantID:  tenantID,
		Nonce:     nonce,
		CreatedAt: createdAt,
		Active:    true,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal connection: %w", err)
	}

	keys := []string{indexKey(tenantID, nonce), recordKey(tenantID, rec.ID), tenantKey(tenantID)}
	if err := createScript.Run(ctx, s.client, keys, payload, createdAt, rec.ID, recordPrefix(tenantID)).Err(); err != nil {
		return nil, repository.StorageError("persist connection", err)
	}
	return rec.toDomain()
}

func (s *RedisConnectionStore) FindPending(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return s.newest(ctx, tenantID, nonce, func(rec *connection.PendingConnection) bool {
		return rec.Pending()
	})
}

func (s *RedisConnectionStore) FindLatest(ctx context.Context, tenantID, nonce string) (*connection.PendingConnection, error) {
	return s.newest(ctx, tenantID, nonce, func(rec *connection.PendingConnection) bool {
		return !rec.Deleted()
	})
}

func (s *RedisConnectionStore) newest(ctx context.Context, tenantID, nonce string, keep func(*connection.PendingConnection) bool) (*connection.PendingConnection, error) {
	tenantID = connection.NormalizeTenant(tenantID)
	nonce = strings.TrimSpace(nonce)

	ids, err := s.client.ZRevRange(ctx, indexKey(tenantID, nonce), 0, -1).Result()
	if err != nil {
		return nil, repository.StorageError("load connection index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, recordKey(tenantID, id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, repository.StorageError("load connections", err)
	}

	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var stored redisRecord
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode connection: %w", err)
		}
		rec, err := stored.toDomain()
		if err != nil {
			return nil, err
		}
		if keep(rec) {
			return rec, nil
		}
	}
	return nil, nil
}

func (s *RedisConnectionStore) Complete(ctx context.Context, record *connection.PendingConnection, accessToken string) error {
	if record == nil || strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("complete connection: %w", connection.ErrValidation)
	}

	id := strconv.FormatInt(record.ID, 10)
	now := s.now()
	keys := []string{recordKey(record.TenantID, id), tenantKey(record.TenantID)}
	outcome, err := completeScript.Run(ctx, s.client, keys, accessToken, now.UnixMilli(), recordPrefix(record.TenantID)).Text()
	if err != nil {
		return repository.StorageError("complete connection", err)
	}

	switch outcome {
	case "ok":
		updated := time.UnixMilli(now.UnixMilli()).UTC()
		record.AccessToken = accessToken
		record.UpdatedAt = &updated
		record.Active = false
		return nil
	case "completed":
		return fmt.Errorf("complete connection %d: %w", record.ID, connection.ErrAlreadyCompleted)
	default:
		return fmt.Errorf("complete connection %d: %w", record.ID, connection.ErrNotFound)
	}
}

func (s *RedisConnectionStore) Abandon(ctx context.Context, record *connection.PendingConnection) error {
	if record == nil {
		return fmt.Errorf("abandon connection: %w", connection.ErrValidation)
	}

	now := s.now()
	key := recordKey(record.TenantID, strconv.FormatInt(record.ID, 10))
	outcome, err := abandonScript.Run(ctx, s.client, []string{key}, now.UnixMilli()).Text()
	if err != nil {
		return repository.StorageError("abandon connection", err)
	}

	switch outcome {
	case "ok":
		updated := time.UnixMilli(now.UnixMilli()).UTC()
		record.Active = false
		record.UpdatedAt = &updated
		return nil
	case "noop":
		return nil
	default:
		return fmt.Errorf("abandon connection %d: %w", record.ID, connection.ErrNotFound)
	}
}

func (r redisRecord) toDomain() (*connection.PendingConnection, error) {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode connection id: %w", err)
	}
	rec := &connection.PendingConnection{
		ID:          id,
		TenantID:    r.TenantID,
		Nonce:       r.Nonce,
		AccessToken: r.AccessToken,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		Active:      r.Active,
	}
	if r.UpdatedAt != 0 {
		t := time.UnixMilli(r.UpdatedAt).UTC()
		rec.UpdatedAt = &t
	}
	if r.DeletedAt != 0 {
		t := time.UnixMilli(r.DeletedAt).UTC()
		rec.DeletedAt = &t
	}
	return rec, nil
}

func tenantTag(tenantID string) string {
	return keyPrefix + "{" + connection.NormalizeTenant(tenantID) + "}"
}

func recordPrefix(tenantID string) string {
	return tenantTag(tenantID) + ":rec:"
}

func recordKey(tenantID, id string) string {
	return recordPrefix(tenantID) + id
}

func indexKey(tenantID, nonce string) string {
	return tenantTag(tenantID) + ":idx:" + nonce
}

func tenantKey(tenantID string) string {
	return tenantTag(tenantID) + ":all"
}
