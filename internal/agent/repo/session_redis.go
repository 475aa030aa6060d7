package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
	logx "github.com/triage-assist/server/pkg/logger"
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only when it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// saveScript writes the snapshot (KEYS[2]) only while KEYS[1] holds our token.
var saveScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

type RedisSessionRepository struct {
	rdb     redis.Cmdable
	ttl     time.Duration
	lockTTL time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl, lockTTL time.Duration) *RedisSessionRepository {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &RedisSessionRepository{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

// Both keys share a hash tag so the save script stays in one cluster slot.
func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("triage:session:{%s}", sessionID)
}

func (r *RedisSessionRepository) lockKey(sessionID string) string {
	return fmt.Sprintf("triage:session:{%s}:lock", sessionID)
}

func (r *RedisSessionRepository) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	key := r.sessionKey(sessionID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		}
		return nil, errx.WrapRedis(sessionID, err)
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	n, err := r.rdb.Del(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(sessionID, err)
	}
	if n == 0 {
		return errx.UnknownSession(sessionID)
	}
	return nil
}

// Lock takes the session lock and keeps extending it until Unlock, so a
// turn slower than the lock TTL still holds it throughout.
func (r *RedisSessionRepository) Lock(ctx context.Context, sessionID string) (model.SessionLock, error) {
	key := r.lockKey(sessionID)
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key, token, r.lockTTL).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to acquire session lock")
		return nil, errx.WrapRedis(sessionID, err)
	}
	if !ok {
		return nil, errx.SessionBusy(sessionID)
	}

	l := &redisLock{
		repo:      r,
		sessionID: sessionID,
		key:       key,
		token:     token,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go l.keepAlive(r.lockTTL / 3)
	return l, nil
}

type redisLock struct {
	repo      *RedisSessionRepository
	sessionID string
	key       string
	token     string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (l *redisLock) keepAlive(interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if !l.renew(interval) {
				return
			}
		}
	}
}

// renew reports whether renewing should continue.
func (l *redisLock) renew(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := renewScript.Run(ctx, l.repo.rdb, []string{l.key}, l.token, l.repo.lockTTL.Milliseconds()).Int()
	if err != nil {
		logx.Warn().Err(err).Str("key", l.key).Msg("failed to renew session lock")
		return true
	}
	if n == 0 {
		logx.Warn().Str("session_id", l.sessionID).Msg("session lock lost before renewal")
		return false
	}
	return true
}

func (l *redisLock) Save(ctx context.Context, s *model.Session) error {
	if s.ID != l.sessionID {
		return fmt.Errorf("lock on session %s cannot save session %s", l.sessionID, s.ID)
	}
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := l.repo.sessionKey(s.ID)
	// SET with expiry refreshes the TTL on every committed turn
	n, err := saveScript.Run(ctx, l.repo.rdb, []string{l.key, key}, l.token, b, l.repo.ttl.Milliseconds()).Int()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(s.ID, err)
	}
	if n == 0 {
		logx.Warn().Str("session_id", s.ID).Msg("session lock lost; snapshot discarded")
		return errx.LockLost(s.ID)
	}
	return nil
}

func (l *redisLock) Unlock(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done

	if err := releaseScript.Run(ctx, l.repo.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		logx.Warn().Err(err).Str("key", l.key).Msg("failed to release session lock")
		return errx.WrapRedis(l.sessionID, err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
