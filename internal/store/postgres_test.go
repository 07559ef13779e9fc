package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_UpsertSource_InsertOrGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`(?s)INSERT INTO sources .* ON CONFLICT \(canonical_key\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "https://example.com/a", "url", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // lost the race, no row inserted

	mock.ExpectQuery(`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE canonical_key = \$1`).
		WithArgs("https://example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "canonical_key", "kind", "discovered_at"}).
			AddRow("src-1", "https://example.com/a", "url", now))

	src, err := s.UpsertSource(context.Background(), ident.CanonicalKey("https://example.com/a"), model.SourceKindURL)
	require.NoError(t, err)
	assert.Equal(t, "src-1", src.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSource_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSource(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestParse_NoneIsNil(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM parse_results`).
		WithArgs("src-1", "ai").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.LatestParse(context.Background(), "src-1", model.MethodAI)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordParse_InvalidMethod(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.RecordParse(context.Background(), ParseAttempt{SourceID: "src-1", Method: "psychic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid method")
}

func TestPostgresStore_SaveFork_LostRaceReturnsExisting(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	parse := &model.ParseResult{
		ID:       "parse-1",
		SourceID: "src-1",
		Method:   model.MethodDeterministic,
		Payload:  &model.Recipe{Title: "Bread"},
		Success:  true,
	}

	// No pre-existing fork.
	mock.ExpectQuery(`SELECT .* FROM user_recipes WHERE owner_id = \$1 AND source_id = \$2`).
		WithArgs("alice", "src-1").
		WillReturnError(pgx.ErrNoRows)

	// Insert conflicts with a concurrent save.
	mock.ExpectExec(`(?s)INSERT INTO user_recipes .* ON CONFLICT \(owner_id, source_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "alice", "src-1", "parse-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	// Reselect returns the winner's row.
	mock.ExpectQuery(`SELECT .* FROM user_recipes WHERE owner_id = \$1 AND source_id = \$2`).
		WithArgs("alice", "src-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "source_id", "parse_result_id", "payload", "is_modified", "tags", "notes", "created_at", "updated_at",
		}).AddRow("fork-9", "alice", "src-1", "parse-1", `{"title":"Bread"}`, false, nil, nil, now, now))

	fork, isNew, err := s.SaveFork(context.Background(), "alice", parse, nil, "")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "fork-9", fork.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteFork_NotOwner(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM user_recipes WHERE id = \$1`).
		WithArgs("fork-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "source_id", "parse_result_id", "payload", "is_modified", "tags", "notes", "created_at", "updated_at",
		}).AddRow("fork-1", "alice", "src-1", "parse-1", `{"title":"Bread"}`, false, nil, nil, now, now))

	err := s.DeleteFork(context.Background(), "mallory", "fork-1")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}
