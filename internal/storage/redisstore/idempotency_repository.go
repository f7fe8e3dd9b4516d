// Package redisstore хранит ключи идемпотентности в Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

const (
	keyPrefix  = "cafe:idem:"
	opTimeout  = 2 * time.Second
	defaultTTL = 24 * time.Hour
)

// Поля hash-записи.
const (
	fieldRequestHash  = "request_hash"
	fieldStatus       = "status"
	fieldResponseBody = "response_body"
	fieldHTTPStatus   = "http_status"
	fieldTTLAt        = "ttl_at"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// KEYS[1]: ключ; ARGV: hash, status, ttl_at, now, expire_at_ms.
var createProcessingScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'request_hash', ARGV[1],
	'status', ARGV[2],
	'ttl_at', ARGV[3],
	'created_at', ARGV[4],
	'updated_at', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
return 1
`)

// HSET не сбрасывает TTL ключа, поэтому запись живёт до исходного ttl_at.
var markStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1],
	'status', ARGV[1],
	'response_body', ARGV[2],
	'http_status', ARGV[3],
	'updated_at', ARGV[4])
return 1
`)

// IdempotencyRepository: реализация domain.IdempotencyRepository поверх Redis.
// Истечение записей выполняет сам Redis.
type IdempotencyRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий поверх готового клиента.
func NewIdempotencyRepository(client redis.UniversalClient) *IdempotencyRepository {
	return &IdempotencyRepository{client: client, now: time.Now}
}

func (r *IdempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultTTL)
	}
	ttlAt = ttlAt.UTC()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	created, err := createProcessingScript.Run(ctx, r.client, []string{keyPrefix + key},
		requestHash,
		string(domain.IdempotencyStatusProcessing),
		formatTime(ttlAt),
		formatTime(now),
		ttlAt.UnixMilli(),
	).Int()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if created == 0 {
		existing, getErr := r.Get(key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	return domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	if len(fields) == 0 {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}

	return decodeRecord(key, fields)
}

func (r *IdempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired ничего не делает: ключи удаляются по PEXPIREAT.
func (r *IdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

// Ping проверяет доступность Redis.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *IdempotencyRepository) markStatus(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	updated, err := markStatusScript.Run(ctx, r.client, []string{keyPrefix + key},
		string(status),
		responseBody,
		httpStatus,
		formatTime(r.now().UTC()),
	).Int()
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func decodeRecord(key string, fields map[string]string) (domain.IdempotencyRecord, error) {
	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: fields[fieldRequestHash],
		Status:      domain.IdempotencyStatus(fields[fieldStatus]),
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", fields[fieldStatus], key)
	}
	if body, ok := fields[fieldResponseBody]; ok {
		record.ResponseBody = []byte(body)
	}
	if raw := fields[fieldHTTPStatus]; raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return domain.IdempotencyRecord{}, fmt.Errorf("parse http status for key %s: %w", key, err)
		}
		record.HTTPStatus = status
	}

	var err error
	if record.TTLAt, err = parseTime(fields[fieldTTLAt]); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("parse ttl for key %s: %w", key, err)
	}
	if record.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("parse created_at for key %s: %w", key, err)
	}
	if record.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("parse updated_at for key %s: %w", key, err)
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
