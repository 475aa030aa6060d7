package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-assist/server/internal/agent/model"
	errx "github.com/triage-assist/server/internal/core/error"
)

func newRedisRepo(t *testing.T) (*RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionRepository(rdb, time.Hour, time.Minute), mr
}

func repositories(t *testing.T) map[string]model.SessionRepository {
	r, _ := newRedisRepo(t)
	return map[string]model.SessionRepository{
		"redis":  r,
		"memory": NewMemorySessionRepository(),
	}
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := r.Load(ctx, "p1")
			require.ErrorIs(t, err, errx.ErrUnknownSession)

			s := &model.Session{
				ID:    "p1",
				Phase: model.PhaseSuspendedQuestion,
				State: model.InterviewState{
					Symptoms:       []string{"headache"},
					QuestionsAsked: []string{"When did it start?"},
					Responses:      []string{},
				},
				Suspension: &model.Suspension{Kind: model.SuspendQuestion, Query: "When did it start?", Format: model.FormatFreeText},
			}
			lock, err := r.Lock(ctx, "p1")
			require.NoError(t, err)
			require.NoError(t, lock.Save(ctx, s))
			require.NoError(t, lock.Unlock(ctx))

			got, err := r.Load(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, model.PhaseSuspendedQuestion, got.Phase)
			assert.Equal(t, []string{"When did it start?"}, got.State.QuestionsAsked)
			require.NotNil(t, got.Suspension)
			assert.Equal(t, model.FormatFreeText, got.Suspension.Format)

			require.NoError(t, r.Delete(ctx, "p1"))
			require.ErrorIs(t, r.Delete(ctx, "p1"), errx.ErrUnknownSession)
		})
	}
}

func TestSessionRepositoryLock(t *testing.T) {
	for name, r := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			lock, err := r.Lock(ctx, "p1")
			require.NoError(t, err)

			_, err = r.Lock(ctx, "p1")
			require.ErrorIs(t, err, errx.ErrSessionBusy)
			assert.Equal(t, 409, errx.Status(err))

			other, err := r.Lock(ctx, "p2")
			require.NoError(t, err)
			require.Error(t, other.Save(ctx, &model.Session{ID: "p1"}))
			require.NoError(t, other.Unlock(ctx))

			require.NoError(t, lock.Unlock(ctx))
			require.NoError(t, lock.Unlock(ctx))
			require.ErrorIs(t, lock.Save(ctx, &model.Session{ID: "p1"}), errx.ErrLockLost)

			again, err := r.Lock(ctx, "p1")
			require.NoError(t, err)
			require.NoError(t, again.Unlock(ctx))
		})
	}
}

func TestRedisSessionRepositoryTTL(t *testing.T) {
	r, mr := newRedisRepo(t)
	ctx := context.Background()
	lock, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, lock.Save(ctx, &model.Session{ID: "p1"}))
	require.NoError(t, lock.Unlock(ctx))
	assert.Equal(t, time.Hour, mr.TTL(r.sessionKey("p1")))

	mr.FastForward(2 * time.Hour)
	_, err = r.Load(ctx, "p1")
	require.ErrorIs(t, err, errx.ErrUnknownSession)
}

func TestRedisLockExpiresAndStaleUnlockIsHarmless(t *testing.T) {
	r, mr := newRedisRepo(t)
	ctx := context.Background()

	stale, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	fresh, err := r.Lock(ctx, "p1")
	require.NoError(t, err)

	// the expired holder must not release the new holder's lock
	require.NoError(t, stale.Unlock(ctx))
	_, err = r.Lock(ctx, "p1")
	require.ErrorIs(t, err, errx.ErrSessionBusy)
	require.NoError(t, fresh.Unlock(ctx))
}

func TestRedisExpiredHolderCannotSave(t *testing.T) {
	r, mr := newRedisRepo(t)
	ctx := context.Background()

	slow, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	fast, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, fast.Save(ctx, &model.Session{ID: "p1", Phase: model.PhaseComplete}))
	require.NoError(t, fast.Unlock(ctx))

	err = slow.Save(ctx, &model.Session{ID: "p1", Phase: model.PhaseCollecting})
	require.ErrorIs(t, err, errx.ErrLockLost)
	assert.Equal(t, 409, errx.Status(err))
	require.NoError(t, slow.Unlock(ctx))

	got, err := r.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseComplete, got.Phase)
}

func TestRedisLockIsRenewedWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r := NewRedisSessionRepository(rdb, time.Hour, 300*time.Millisecond)
	ctx := context.Background()

	lock, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	key := r.lockKey("p1")

	// miniredis only ages keys on FastForward; renewal restores the full TTL
	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL(key) == 300*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, lock.Save(ctx, &model.Session{ID: "p1"}))
	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists(key))
}

func TestMemorySessionRepositoryIsolatesSnapshots(t *testing.T) {
	r := NewMemorySessionRepository()
	ctx := context.Background()
	s := &model.Session{ID: "p1", State: model.InterviewState{Symptoms: []string{"cough"}}}
	lock, err := r.Lock(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, lock.Save(ctx, s))
	require.NoError(t, lock.Unlock(ctx))
	s.State.Symptoms[0] = "mutated"

	got, err := r.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cough"}, got.State.Symptoms)
}
