package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/search"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// forkRow is a scanned fork listing row, backend-agnostic.
type forkRow struct {
	id         string
	payload    string
	isModified bool
	tags       sql.NullString
	notes      string
	createdAt  time.Time
	updatedAt  time.Time
	sourceKey  string
}

// collectForkPage walks rows (ordered created_at DESC, id DESC) and builds a
// page. The cursor position is applied while streaming, and tag/search
// filters run before pagination so HasMore and NextCursor describe the
// filtered set. next returns (nil, nil) when exhausted.
func collectForkPage(next func() (*forkRow, error), opts ListOptions) (*ForkPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	cur, err := decodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}

	var items []model.ForkSummary
	for len(items) <= limit {
		row, err := next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		if cur != nil && !cur.after(row.createdAt, row.id) {
			continue
		}
		if opts.ModifiedOnly && !row.isModified {
			continue
		}

		var payload model.Recipe
		if err := json.Unmarshal([]byte(row.payload), &payload); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal fork payload %s", row.id)
		}
		tags, err := unmarshalTags(row.tags)
		if err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal fork tags %s", row.id)
		}

		if !search.HasAllTags(tags, opts.Tags) {
			continue
		}
		if !search.MatchesFork(&payload, tags, row.notes, opts.Search) {
			continue
		}

		items = append(items, model.ForkSummary{
			ID:         row.id,
			SourceKey:  row.sourceKey,
			Title:      payload.Title,
			ImageURL:   payload.ImageURL,
			IsModified: row.isModified,
			Tags:       tags,
			CreatedAt:  row.createdAt,
			UpdatedAt:  row.updatedAt,
		})
	}

	page := &ForkPage{HasMore: len(items) > limit}
	if page.HasMore {
		items = items[:limit]
	}
	page.Items = items
	if page.HasMore && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// marshalRecipe encodes a payload for storage; nil stays NULL.
func marshalRecipe(r *model.Recipe) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "store: marshal recipe")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalRecipe(ns sql.NullString) (*model.Recipe, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var r model.Recipe
	if err := json.Unmarshal([]byte(ns.String), &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal recipe")
	}
	return &r, nil
}

// marshalTags encodes tags as a JSON array; empty stays NULL.
func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "store: marshal tags")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalTags(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(ns.String), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
