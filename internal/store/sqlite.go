package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id            TEXT PRIMARY KEY,
	canonical_key TEXT NOT NULL UNIQUE,
	kind          TEXT NOT NULL,
	discovered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS parse_results (
	id                 TEXT PRIMARY KEY,
	source_id          TEXT NOT NULL REFERENCES sources(id),
	method             TEXT NOT NULL,
	payload            TEXT,
	input_content_hash TEXT NOT NULL DEFAULT '',
	success            INTEGER NOT NULL,
	error_detail       TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS user_recipes (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	parse_result_id TEXT NOT NULL REFERENCES parse_results(id),
	payload         TEXT NOT NULL,
	is_modified     INTEGER NOT NULL DEFAULT 0,
	tags            TEXT,
	notes           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (owner_id, source_id)
);

CREATE INDEX IF NOT EXISTS idx_parse_results_lookup ON parse_results(source_id, method, created_at);
CREATE INDEX IF NOT EXISTS idx_user_recipes_owner_created ON user_recipes(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_user_recipes_source ON user_recipes(source_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertSource registers a source, or returns the existing record for the
// canonical key. Concurrent first-time saves race on the unique constraint;
// the loser's insert is a no-op and both read the same row back.
func (s *SQLiteStore) UpsertSource(ctx context.Context, key ident.CanonicalKey, kind model.SourceKind) (*model.SourceRecord, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, canonical_key, kind, discovered_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (canonical_key) DO NOTHING`,
		uuid.New().String(), string(key), string(kind), time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert source")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE canonical_key = ?`,
		string(key),
	)
	return scanSource(row)
}

func (s *SQLiteStore) GetSource(ctx context.Context, sourceID string) (*model.SourceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, canonical_key, kind, discovered_at FROM sources WHERE id = ?`,
		sourceID,
	)
	return scanSource(row)
}

func (s *SQLiteStore) RecordParse(ctx context.Context, attempt ParseAttempt) (*model.ParseResult, error) {
	if !attempt.Method.Valid() {
		return nil, eris.Errorf("sqlite: invalid method %q", attempt.Method)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	payload, err := marshalRecipe(attempt.Payload)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parse_results (id, source_id, method, payload, input_content_hash, success, error_detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, attempt.SourceID, string(attempt.Method), payload, attempt.InputHash, attempt.Success, attempt.ErrorDetail, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert parse result for source %s", attempt.SourceID)
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

// LatestParse returns the most recent successful result for the pair, or
// nil when none exists. Failed attempts are kept as history but never served.
func (s *SQLiteStore) LatestParse(ctx context.Context, sourceID string, method model.Method) (*model.ParseResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, method, payload, input_content_hash, success, error_detail, created_at
		 FROM parse_results
		 WHERE source_id = ? AND method = ? AND success = 1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sourceID, string(method),
	)
	result, err := scanParse(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return result, err
}

func (s *SQLiteStore) GetParse(ctx context.Context, parseID string) (*model.ParseResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, method, payload, input_content_hash, success, error_detail, created_at
		 FROM parse_results WHERE id = ?`,
		parseID,
	)
	return scanParse(row)
}

// SaveFork creates a fork as a deep copy of the parse result payload, or
// returns the user's existing fork for the source untouched. The unique
// (owner_id, source_id) constraint resolves concurrent first saves.
func (s *SQLiteStore) SaveFork(ctx context.Context, ownerID string, parse *model.ParseResult, tags []string, notes string) (*model.UserRecipe, bool, error) {
	if parse == nil || !parse.Success || parse.Payload == nil {
		return nil, false, eris.New("sqlite: fork requires a successful parse result")
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

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_recipes (id, owner_id, source_id, parse_result_id, payload, is_modified, tags, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, source_id) DO NOTHING`,
		id, ownerID, parse.SourceID, parse.ID, payload, tagsJSON, notes, now, now,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert fork for owner %s", ownerID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Lost the race to a concurrent save; return the winner's row.
		existing, err := s.forkByOwnerSource(ctx, ownerID, parse.SourceID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, eris.New("sqlite: fork insert conflicted but row not found")
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

func (s *SQLiteStore) GetFork(ctx context.Context, ownerID, forkID string) (*model.UserRecipe, error) {
	row := s.db.QueryRowContext(ctx, selectForkSQL+` WHERE id = ? AND owner_id = ?`, forkID, ownerID)
	return scanFork(row)
}

func (s *SQLiteStore) GetForkWithLineage(ctx context.Context, ownerID, forkID string) (*model.ForkWithLineage, error) {
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

// UpdateFork applies a partial update. A payload change sets is_modified
// permanently; the flag never resets even if a later update restores the
// original payload.
func (s *SQLiteStore) UpdateFork(ctx context.Context, ownerID, forkID string, patch model.ForkPatch) (*model.UserRecipe, error) {
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

	_, err = s.db.ExecContext(ctx,
		`UPDATE user_recipes SET payload = ?, is_modified = ?, tags = ?, notes = ?, updated_at = ? WHERE id = ?`,
		payload, next.IsModified, tagsJSON, next.Notes, next.UpdatedAt, forkID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update fork %s", forkID)
	}
	return next, nil
}

// DeleteFork removes the fork row only. Parse results and sources are shared
// and must never be touched by a fork delete.
func (s *SQLiteStore) DeleteFork(ctx context.Context, ownerID, forkID string) error {
	if _, err := s.forkForWrite(ctx, ownerID, forkID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_recipes WHERE id = ? AND owner_id = ?`,
		forkID, ownerID,
	)
	return eris.Wrapf(err, "sqlite: delete fork %s", forkID)
}

func (s *SQLiteStore) ListForks(ctx context.Context, ownerID string, opts ListOptions) (*ForkPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ur.id, ur.payload, ur.is_modified, ur.tags, ur.notes, ur.created_at, ur.updated_at, s.canonical_key
		 FROM user_recipes ur
		 JOIN sources s ON s.id = ur.source_id
		 WHERE ur.owner_id = ?
		 ORDER BY ur.created_at DESC, ur.id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list forks")
	}
	defer rows.Close()

	next := func() (*forkRow, error) {
		if !rows.Next() {
			return nil, eris.Wrap(rows.Err(), "sqlite: list forks iterate")
		}
		var r forkRow
		var notes sql.NullString
		if err := rows.Scan(&r.id, &r.payload, &r.isModified, &r.tags, &notes, &r.createdAt, &r.updatedAt, &r.sourceKey); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fork row")
		}
		r.notes = notes.String
		return &r, nil
	}
	return collectForkPage(next, opts)
}

// helpers

const selectForkSQL = `SELECT id, owner_id, source_id, parse_result_id, payload, is_modified, tags, notes, created_at, updated_at FROM user_recipes`

// forkByOwnerSource returns the owner's fork for a source, or nil.
func (s *SQLiteStore) forkByOwnerSource(ctx context.Context, ownerID, sourceID string) (*model.UserRecipe, error) {
	row := s.db.QueryRowContext(ctx, selectForkSQL+` WHERE owner_id = ? AND source_id = ?`, ownerID, sourceID)
	fork, err := scanFork(row)
	if eris.Is(err, ErrNotFound) {
		return nil, nil
	}
	return fork, err
}

// forkForWrite loads a fork by id for mutation, distinguishing a missing
// row from one owned by someone else.
func (s *SQLiteStore) forkForWrite(ctx context.Context, ownerID, forkID string) (*model.UserRecipe, error) {
	row := s.db.QueryRowContext(ctx, selectForkSQL+` WHERE id = ?`, forkID)
	fork, err := scanFork(row)
	if err != nil {
		return nil, err
	}
	if fork.OwnerID != ownerID {
		return nil, eris.Wrapf(ErrNotOwner, "fork %s", forkID)
	}
	return fork, nil
}

// applyPatch merges a patch into a fork, enforcing the monotonic modified
// flag and strictly increasing updated_at.
func applyPatch(existing *model.UserRecipe, patch model.ForkPatch) *model.UserRecipe {
	next := *existing
	if patch.Payload != nil {
		next.Payload = patch.Payload.Clone()
		next.IsModified = true
	}
	if patch.Tags != nil {
		next.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}

	now := time.Now().UTC()
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now
	return &next
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.SourceRecord, error) {
	var src model.SourceRecord
	var key, kind string
	err := row.Scan(&src.ID, &key, &kind, &src.DiscoveredAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "source")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan source")
	}
	src.CanonicalKey = key
	src.Kind = model.SourceKind(kind)
	return &src, nil
}

func scanParse(row scannable) (*model.ParseResult, error) {
	var p model.ParseResult
	var method string
	var payload sql.NullString
	err := row.Scan(&p.ID, &p.SourceID, &method, &payload, &p.InputContentHash, &p.Success, &p.ErrorDetail, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "parse result")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan parse result")
	}
	p.Method = model.Method(method)
	p.Payload, err = unmarshalRecipe(payload)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanFork(row scannable) (*model.UserRecipe, error) {
	var f model.UserRecipe
	var payload string
	var tags, notes sql.NullString
	err := row.Scan(&f.ID, &f.OwnerID, &f.SourceID, &f.ParseResultID, &payload, &f.IsModified, &tags, &notes, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "fork")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan fork")
	}
	f.Payload, err = unmarshalRecipe(sql.NullString{String: payload, Valid: true})
	if err != nil {
		return nil, err
	}
	f.Tags, err = unmarshalTags(tags)
	if err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal fork tags %s", f.ID)
	}
	f.Notes = notes.String
	return &f, nil
}
