// Package storage is the pipeline's Postgres repository for
// TranscriptChunk, ExtractedFact, and Input rows, grounded on the
// teacher's pkg/database/client.go (pgx DSN construction, connection pool
// sizing, golang-migrate with an embedded migration source) generalized
// from Ent-backed access to direct SQL since this domain's three tables
// don't warrant a generated ORM layer.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Store wraps a pooled Postgres connection and exposes the pipeline's
// relational operations.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres per cfg, applies pending migrations, and
// configures the connection pool. password is read by the caller from
// cfg.PasswordEnv (config loading owns env var resolution).
func Open(ctx context.Context, cfg *config.PostgresConfig, password string) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB, useful for tests against
// sqlmock or an ephemeral test database.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func runMigrations(db *sql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Only the source side; m.Close() would also close db, which the
	// caller still owns.
	return sourceDriver.Close()
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertTranscriptChunks inserts chunks, ignoring rows whose id already
// exists (the chunker always generates fresh uuids, so a conflict only
// happens on a harmless re-run).
func (s *Store) InsertTranscriptChunks(ctx context.Context, chunks []models.TranscriptChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_chunks (id, meeting_id, chunk_index, speaker, chunk_content, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("storage: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.MeetingID, c.ChunkIndex, nullableString(c.Speaker), c.ChunkContent, nullableString(c.Source), c.CreatedAt); err != nil {
			return fmt.Errorf("storage: insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// InsertExtractedFacts inserts facts, ignoring rows whose id already
// exists.
func (s *Store) InsertExtractedFacts(ctx context.Context, facts []models.ExtractedFact) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO extracted_facts
			(id, meeting_id, source_chunk_id, speaker, fact_type, fact_content, source_quote, certainty, group_label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("storage: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, f.ID, f.MeetingID, f.SourceChunkID, nullableString(f.Speaker),
			string(f.FactType), f.FactContent, nullableString(f.SourceQuote), f.Certainty, f.GroupLabel, f.CreatedAt); err != nil {
			return fmt.Errorf("storage: insert fact %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// UngroupedFacts returns every fact for meetingID whose group_label is
// still null, ordered by creation so the grouping node sees a stable
// batch order.
func (s *Store) UngroupedFacts(ctx context.Context, meetingID string) ([]models.ExtractedFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, source_chunk_id, speaker, fact_type, fact_content, source_quote, certainty, group_label, created_at
		FROM extracted_facts
		WHERE meeting_id = $1 AND group_label IS NULL
		ORDER BY created_at ASC, id ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("storage: query ungrouped facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactsByMeeting returns every fact recorded for meetingID, regardless of
// group_label, ordered for deterministic aggregation.
func (s *Store) FactsByMeeting(ctx context.Context, meetingID string) ([]models.ExtractedFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, source_chunk_id, speaker, fact_type, fact_content, source_quote, certainty, group_label, created_at
		FROM extracted_facts
		WHERE meeting_id = $1
		ORDER BY group_label ASC NULLS LAST, certainty DESC, source_chunk_id ASC, created_at ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("storage: query facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// UpdateFactGroupLabels persists the group_label the Grouping Node
// assigned to each fact.
func (s *Store) UpdateFactGroupLabels(ctx context.Context, facts []models.ExtractedFact) error {
	if len(facts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE extracted_facts SET group_label = $2 WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("storage: prepare: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, f.ID, f.GroupLabel); err != nil {
			return fmt.Errorf("storage: update fact %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// InsertInputs inserts the Aggregator Node's synthesized rows, ordered by
// group_label by the caller beforehand (spec §4.11: deterministic
// downstream ordering).
func (s *Store) InsertInputs(ctx context.Context, inputs []models.Input) error {
	if len(inputs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO inputs (id, meeting_id, group_label, input_content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("storage: prepare: %w", err)
	}
	defer stmt.Close()

	for _, in := range inputs {
		if _, err := stmt.ExecContext(ctx, in.ID, in.MeetingID, in.GroupLabel, in.InputContent, in.CreatedAt); err != nil {
			return fmt.Errorf("storage: insert input %s: %w", in.ID, err)
		}
	}
	return tx.Commit()
}

// InputsByMeeting returns every synthesized input for meetingID, ordered
// by group_label.
func (s *Store) InputsByMeeting(ctx context.Context, meetingID string) ([]models.Input, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, group_label, input_content, created_at
		FROM inputs WHERE meeting_id = $1 ORDER BY group_label ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("storage: query inputs: %w", err)
	}
	defer rows.Close()

	var out []models.Input
	for rows.Next() {
		var in models.Input
		if err := rows.Scan(&in.ID, &in.MeetingID, &in.GroupLabel, &in.InputContent, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan input: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanFacts(rows *sql.Rows) ([]models.ExtractedFact, error) {
	var out []models.ExtractedFact
	for rows.Next() {
		var f models.ExtractedFact
		var speaker, sourceQuote sql.NullString
		var factType string
		if err := rows.Scan(&f.ID, &f.MeetingID, &f.SourceChunkID, &speaker, &factType, &f.FactContent, &sourceQuote, &f.Certainty, &f.GroupLabel, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan fact: %w", err)
		}
		f.Speaker = speaker.String
		f.SourceQuote = sourceQuote.String
		f.FactType = models.FactType(factType)
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
