package sink

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-assist/server/internal/agent/model"
)

func sqliteConfig(t *testing.T) model.SinkConfig {
	t.Helper()
	return model.SinkConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "triage.db")}
}

func record(id string, urgency int, at time.Time) model.TriageRecord {
	return model.TriageRecord{
		ID:              id,
		SessionID:       "thread-" + id,
		Symptoms:        "headache, nausea",
		UrgencyLevel:    urgency,
		UrgencyLabel:    "label",
		ClinicalSummary: "summary " + id,
		Diagnosis:       `{"differential_diagnosis":[]}`,
		QuestionCount:   4,
		CreatedAt:       at,
	}
}

func TestSQLSinkAppendAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Append(ctx, record("a", 3, base)))
	require.NoError(t, s.Append(ctx, record("b", 1, base.Add(time.Minute))))
	require.NoError(t, s.Append(ctx, record("c", 3, base.Add(-time.Minute))))
	require.NoError(t, s.Append(ctx, record("d", 5, base)))

	recs, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	ids := []string{recs[0].ID, recs[1].ID, recs[2].ID, recs[3].ID}
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)

	got := recs[2]
	assert.Equal(t, "thread-a", got.SessionID)
	assert.Equal(t, "summary a", got.ClinicalSummary)
	assert.Equal(t, 4, got.QuestionCount)
	assert.True(t, got.CreatedAt.Equal(base), "created_at %v", got.CreatedAt)

	recs, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLSinkDuplicateID(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, record("a", 3, time.Now())))
	assert.Error(t, s.Append(ctx, record("a", 3, time.Now())))
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, record("a", 2, time.Now())))
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()
	recs, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpenValidates(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, model.SinkConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
	_, err = Open(ctx, model.SinkConfig{Driver: DriverPostgres})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLSink{driver: DriverPostgres}
	assert.Equal(t, "VALUES ($1, $2) LIMIT $3", pg.rebind("VALUES (?, ?) LIMIT ?"))
	lite := &SQLSink{driver: DriverSQLite}
	assert.Equal(t, "LIMIT ?", lite.rebind("LIMIT ?"))
}

func TestLazyOpensOnce(t *testing.T) {
	ctx := context.Background()
	l := NewLazy(sqliteConfig(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(ctx, record(string(rune('a'+i)), 3, time.Now())))
		}(i)
	}
	wg.Wait()

	recs, err := l.List(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 8)

	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Append(ctx, record("z", 1, time.Now())), ErrClosed)
	assert.NoError(t, l.Close())
}

func TestLazyRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	l := NewLazy(model.SinkConfig{Driver: DriverSQLite})
	assert.Error(t, l.Append(ctx, record("a", 3, time.Now())))

	l.cfg = sqliteConfig(t)
	assert.NoError(t, l.Append(ctx, record("a", 3, time.Now())))
	require.NoError(t, l.Close())
}
