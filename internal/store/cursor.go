package store

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// cursor is the stable sort position of the last item on a page: creation
// timestamp with id as tie-break, descending. Position-based cursors keep
// pagination stable under concurrent inserts, unlike offsets.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

func encodeCursor(createdAt time.Time, id string) string {
	raw, _ := json.Marshal(cursor{CreatedAt: createdAt.UTC(), ID: id})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (*cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode cursor")
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal cursor")
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, eris.New("store: malformed cursor")
	}
	return &c, nil
}

// after reports whether a row at (createdAt, id) comes after the cursor
// position in the descending sort order, i.e. belongs to a later page.
func (c *cursor) after(createdAt time.Time, id string) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id < c.ID
}
