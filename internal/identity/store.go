package identity

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/diewo77/studio-console/internal/config"
	"github.com/diewo77/studio-console/internal/models"
)

// SessionStore persists server-side sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	// Get returns ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Rotate replaces oldHash with newHash. It returns ErrRefreshReused when
	// the stored hash is no longer oldHash.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error
	Revoke(ctx context.Context, id string) error
}

// OpenSessionStore returns the store selected by cfg.Store and a function
// releasing its resources.
func OpenSessionStore(ctx context.Context, cfg config.SessionConfig, db *gorm.DB) (SessionStore, func() error, error) {
	switch cfg.Store {
	case "", "db":
		return NewGormSessionStore(db), func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(redisOptions(cfg))
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis session store: %w", err)
		}
		return NewRedisSessionStore(rdb), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

func redisOptions(cfg config.SessionConfig) *redis.Options {
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// GormSessionStore keeps sessions in the sessions table.
type GormSessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db, now: time.Now}
}

func (s *GormSessionStore) Create(ctx context.Context, sess *models.Session) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *GormSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormSessionStore) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL AND refresh_hash = ?", id, oldHash).
		Updates(map[string]any{"refresh_hash": newHash, "expires_at": expiresAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if sess.RevokedAt != nil {
			return ErrSessionInactive
		}
		return ErrRefreshReused
	}
	return nil
}

func (s *GormSessionStore) Revoke(ctx context.Context, id string) error {
	now := s.now()
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", &now).Error
}

// RedisSessionStore keeps each session as a JSON value that expires with
// the session. Revoking deletes the key.
type RedisSessionStore struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(rdb redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, prefix: "studio:session:", now: time.Now}
}

func (s *RedisSessionStore) key(id string) string { return s.prefix + id }

func (s *RedisSessionStore) put(ctx context.Context, sess *models.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionInactive
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(sess.ID), data, ttl).Err()
}

func (s *RedisSessionStore) Create(ctx context.Context, sess *models.Session) error {
	now := s.now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	return s.put(ctx, sess)
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// swapScript sets KEYS[1] to ARGV[2] with a PX of ARGV[3] only while it
// still holds ARGV[1].
var swapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return false
`)

func (s *RedisSessionStore) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	old, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	var sess models.Session
	if err := json.Unmarshal(old, &sess); err != nil {
		return fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.RefreshHash != oldHash {
		return ErrRefreshReused
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrSessionInactive
	}
	sess.RefreshHash = newHash
	sess.ExpiresAt = expiresAt
	sess.UpdatedAt = s.now()
	data, err := json.Marshal(&sess)
	if err != nil {
		return err
	}
	err = swapScript.Run(ctx, s.rdb, []string{s.key(id)}, old, data, ttl.Milliseconds()).Err()
	if errors.Is(err, redis.Nil) {
		return ErrRefreshReused
	}
	return err
}

func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}
