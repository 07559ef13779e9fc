package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in unit tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pgxPool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	canonical_key TEXT NOT NULL UNIQUE,
	kind          TEXT NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS parse_results (
	id                 TEXT PRIMARY KEY,
	source_id          TEXT NOT NULL REFERENCES sources(id),
	method             TEXT NOT NULL,
	payload            TEXT,
	input_content_hash TEXT NOT NULL DEFAULT '',
	success            BOOLEAN NOT NULL,
	error_detail       TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_recipes (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	parse_result_id TEXT NOT NULL REFERENCES parse_results(id),
	payload         TEXT NOT NULL,
	is_modified     BOOLEAN NOT NULL DEFAULT FALSE,
	tags            TEXT,
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, source_id)
);

CREATE INDEX IF NOT EXISTS idx_parse_results_lookup ON parse_results(source_id, method, created_at);
CREATE INDEX IF NOT EXISTS idx_user_recipes_owner_created ON user_recipes(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_user_recipes_source ON user_recipes(source_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, key ident.CanonicalKey, kind model.SourceKind) (*model.SourceRecord, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sources (id, canonical_key, kind, discovered_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (canonical_key) DO NOTHING`,
		uuid.New().String(), string(key), string(kind), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert source")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE canonical_key = $1`,
		string(key),
	)
	return scanSource(pgRow{row})
}

func (s *PostgresStore) GetSource(ctx context.Context, sourceID string) (*model.SourceRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE id = $1`,
		sourceID,
	)
	return scanSource(pgRow{row})
}

func (s *PostgresStore) RecordParse(ctx context.Context, attempt ParseAttempt) (*model.ParseResult, error) {
	if !attempt.Method.Valid() {
		return nil, eris.Errorf("postgres: invalid method %q", attempt.Method)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	payload, err := marshalRecipe(attempt.Payload)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO parse_results (id, source_id, method, payload, input_content_hash, success, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, attempt.SourceID, string(attempt.Method), payload, attempt.InputHash, attempt.Success, attempt.ErrorDetail, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert parse result for source %s", attempt.SourceID)
	}

	return &model.ParseResult{
		ID:               id,
		SourceID:         attempt.SourceID,
		Method:           attempt.Method,
		Payload:          attempt.Payload.Clone(),
		InputContentHash: attempt.InputHash,
		Success:          attempt.Success,
		ErrorDetail:      attempt.ErrorDetail,
		CreatedAt:        now,
	}, nil
}

func (s *PostgresStore) LatestParse(ctx context.Context, sourceID string, method model.Method) (*model.ParseResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_id, method, payload, input_content_hash, success, error_detail, created_at
		 FROM parse_results
		 WHERE source_id = $1 AND method = $2 AND success
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sourceID, string(method),
	)
	result, err := scanParse(pgRow{row})
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return result, err
}

func (s *PostgresStore) GetParse(ctx context.Context, parseID string) (*model.ParseResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_id, method, payload, input_content_hash, success, error_detail, created_at
		 FROM parse_results WHERE id = $1`,
		parseID,
	)
	return scanParse(pgRow{row})
}

func (s *PostgresStore) SaveFork(ctx context.Context, ownerID string, parse *model.ParseResult, tags []string, notes string) (*model.UserRecipe, bool, error) {
	if parse == nil || !parse.Success || parse.Payload == nil {
		return nil, false, eris.New("postgres: fork requires a successful parse result")
	}

	if existing, err := s.forkByOwnerSource(ctx, ownerID, parse.SourceID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	payload, err := marshalRecipe(parse.Payload.Clone())
	if err != nil {
		return nil, false, err
	}
	tagsJSON, err := marshalTags(tags)
	if err != nil {
		return nil, false, err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_recipes (id, owner_id, source_id, parse_result_id, payload, is_modified, tags, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9)
		 ON CONFLICT (owner_id, source_id) DO NOTHING`,
		id, ownerID, parse.SourceID, parse.ID, payload, tagsJSON, notes, now, now,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: insert fork for owner %s", ownerID)
	}

	if tag.RowsAffected() == 0 {
		existing, err := s.forkByOwnerSource(ctx, ownerID, parse.SourceID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, eris.New("postgres: fork insert conflicted but row not found")
		}
		return existing, false, nil
	}

	return &model.UserRecipe{
		ID:            id,
		OwnerID:       ownerID,
		SourceID:      parse.SourceID,
		ParseResultID: parse.ID,
		Payload:       parse.Payload.Clone(),
		Tags:          tags,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, true, nil
}

func (s *PostgresStore) GetFork(ctx context.Context, ownerID, forkID string) (*model.UserRecipe, error) {
	row := s.pool.QueryRow(ctx, selectForkSQL+` WHERE id = $1 AND owner_id = $2`, forkID, ownerID)
	return scanFork(pgRow{row})
}

func (s *PostgresStore) GetForkWithLineage(ctx context.Context, ownerID, forkID string) (*model.ForkWithLineage, error) {
	fork, err := s.GetFork(ctx, ownerID, forkID)
	if err != nil {
		return nil, err
	}
	parent, err := s.GetParse(ctx, fork.ParseResultID)
	if err != nil {
		return nil, err
	}
	source, err := s.GetSource(ctx, fork.SourceID)
	if err != nil {
		return nil, err
	}
	return &model.ForkWithLineage{Fork: *fork, Parent: *parent, Source: *source}, nil
}

func (s *PostgresStore) UpdateFork(ctx context.Context, ownerID, forkID string, patch model.ForkPatch) (*model.UserRecipe, error) {
	existing, err := s.forkForWrite(ctx, ownerID, forkID)
	if err != nil {
		return nil, err
	}

	next := applyPatch(existing, patch)

	payload, err := marshalRecipe(next.Payload)
	if err != nil {
		return nil, err
	}
	tagsJSON, err := marshalTags(next.Tags)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE user_recipes SET payload = $1, is_modified = $2, tags = $3, notes = $4, updated_at = $5 WHERE id = $6`,
		payload, next.IsModified, tagsJSON, next.Notes, next.UpdatedAt, forkID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update fork %s", forkID)
	}
	return next, nil
}

func (s *PostgresStore) DeleteFork(ctx context.Context, ownerID, forkID string) error {
	if _, err := s.forkForWrite(ctx, ownerID, forkID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_recipes WHERE id = $1 AND owner_id = $2`,
		forkID, ownerID,
	)
	return eris.Wrapf(err, "postgres: delete fork %s", forkID)
}

func (s *PostgresStore) ListForks(ctx context.Context, ownerID string, opts ListOptions) (*ForkPage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ur.id, ur.payload, ur.is_modified, ur.tags, ur.notes, ur.created_at, ur.updated_at, s.canonical_key
		 FROM user_recipes ur
		 JOIN sources s ON s.id = ur.source_id
		 WHERE ur.owner_id = $1
		 ORDER BY ur.created_at DESC, ur.id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list forks")
	}
	defer rows.Close()

	next := func() (*forkRow, error) {
		if !rows.Next() {
			return nil, eris.Wrap(rows.Err(), "postgres: list forks iterate")
		}
		var r forkRow
		var notes sql.NullString
		if err := rows.Scan(&r.id, &r.payload, &r.isModified, &r.tags, &notes, &r.createdAt, &r.updatedAt, &r.sourceKey); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fork row")
		}
		r.notes = notes.String
		return &r, nil
	}
	return collectForkPage(next, opts)
}

// helpers

func (s *PostgresStore) forkByOwnerSource(ctx context.Context, ownerID, sourceID string) (*model.UserRecipe, error) {
	row := s.pool.QueryRow(ctx, selectForkSQL+` WHERE owner_id = $1 AND source_id = $2`, ownerID, sourceID)
	fork, err := scanFork(pgRow{row})
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return fork, err
}

func (s *PostgresStore) forkForWrite(ctx context.Context, ownerID, forkID string) (*model.UserRecipe, error) {
	row := s.pool.QueryRow(ctx, selectForkSQL+` WHERE id = $1`, forkID)
	fork, err := scanFork(pgRow{row})
	if err != nil {
		return nil, err
	}
	if fork.OwnerID != ownerID {
		return nil, eris.Wrapf(ErrNotOwner, "fork %s", forkID)
	}
	return fork, nil
}

// pgRow adapts pgx row errors to the database/sql sentinel the shared scan
// helpers check for.
type pgRow struct {
	row pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	return err
}
