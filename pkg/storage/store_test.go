package storage

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/smartmeet/notetaker/pkg/models"
)

// newTestStore starts an ephemeral Postgres container, applies migrations,
// and returns a Store wired to it. Mirrors the teacher's
// test/util.SetupTestDatabase shared-container pattern, simplified to one
// fresh container per test since this suite is small.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("notetaker_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, runMigrations(db, "notetaker_test"))
	return NewFromDB(db)
}

func TestInsertAndQueryTranscriptChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := models.TranscriptChunk{
		ID:           uuid.NewString(),
		MeetingID:    "meeting-1",
		ChunkIndex:   0,
		Speaker:      "Alice",
		ChunkContent: "hello world",
		Source:       "merged",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.InsertTranscriptChunks(ctx, []models.TranscriptChunk{chunk}))

	// Re-inserting the same id is a no-op, not an error.
	require.NoError(t, store.InsertTranscriptChunks(ctx, []models.TranscriptChunk{chunk}))
}

func TestInsertExtractedFactsAndUngroupedFacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunk := models.TranscriptChunk{ID: uuid.NewString(), MeetingID: "meeting-1", ChunkContent: "c"}
	require.NoError(t, store.InsertTranscriptChunks(ctx, []models.TranscriptChunk{chunk}))

	fact := models.ExtractedFact{
		ID:            uuid.NewString(),
		MeetingID:     "meeting-1",
		SourceChunkID: chunk.ID,
		FactType:      models.FactDecision,
		FactContent:   "Ship Friday.",
		Certainty:     90,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.InsertExtractedFacts(ctx, []models.ExtractedFact{fact}))

	ungrouped, err := store.UngroupedFacts(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, ungrouped, 1)
	require.Equal(t, "Ship Friday.", ungrouped[0].FactContent)
	require.Nil(t, ungrouped[0].GroupLabel)

	label := "decisions"
	ungrouped[0].GroupLabel = &label
	require.NoError(t, store.UpdateFactGroupLabels(ctx, ungrouped))

	stillUngrouped, err := store.UngroupedFacts(ctx, "meeting-1")
	require.NoError(t, err)
	require.Empty(t, stillUngrouped)

	all, err := store.FactsByMeeting(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].GroupLabel)
	require.Equal(t, "decisions", *all[0].GroupLabel)
}

func TestInsertAndQueryInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := models.Input{
		ID:           uuid.NewString(),
		MeetingID:    "meeting-1",
		GroupLabel:   "decisions",
		InputContent: "Ship Friday.",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.InsertInputs(ctx, []models.Input{in}))

	inputs, err := store.InputsByMeeting(ctx, "meeting-1")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, "Ship Friday.", inputs[0].InputContent)
}

var _ = fmt.Sprintf
