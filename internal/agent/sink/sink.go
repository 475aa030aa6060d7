// Package sink stores finished triage outcomes for the admin queue.
package sink

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/triage-assist/server/internal/agent/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"

	defaultListLimit = 50
	maxListLimit     = 500
)

//go:embed schema/*.sql
var schemaFS embed.FS

// SQLSink writes triage records to postgres or sqlite.
type SQLSink struct {
	db     *sql.DB
	driver string
}

// Open connects, pings and migrates.
func Open(ctx context.Context, cfg model.SinkConfig) (*SQLSink, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink driver %s requires SINK_DSN", driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer at a time
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &SQLSink{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the schema for the sink's driver. It is idempotent.
func (s *SQLSink) Migrate(ctx context.Context) error {
	ddl, err := schemaFS.ReadFile("schema/" + s.driver + ".sql")
	if err != nil {
		return fmt.Errorf("read %s schema: %w", s.driver, err)
	}
	if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("migrate %s: %w", s.driver, err)
	}
	return nil
}

func (s *SQLSink) Append(ctx context.Context, rec model.TriageRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO triage_records
         (id, thread_id, symptoms, urgency_level, urgency_level_text, clinical_summary, diagnosis, questions_asked, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.SessionID, rec.Symptoms, rec.UrgencyLevel, rec.UrgencyLabel,
		rec.ClinicalSummary, rec.Diagnosis, rec.QuestionCount, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert triage record %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records most urgent first, oldest first within a level.
func (s *SQLSink) List(ctx context.Context, limit int) ([]model.TriageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, thread_id, symptoms, urgency_level, urgency_level_text, clinical_summary, diagnosis, questions_asked, created_at
         FROM triage_records
         ORDER BY urgency_level ASC, created_at ASC
         LIMIT ?`), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list triage records: %w", err)
	}
	defer rows.Close()

	var out []model.TriageRecord
	for rows.Next() {
		var r model.TriageRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Symptoms, &r.UrgencyLevel, &r.UrgencyLabel,
			&r.ClinicalSummary, &r.Diagnosis, &r.QuestionCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan triage record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLSink) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

var (
	_ model.TriageSink   = (*SQLSink)(nil)
	_ model.RecordLister = (*SQLSink)(nil)
)
