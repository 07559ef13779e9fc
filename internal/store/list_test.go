package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// seedFork saves one fork for owner from a fresh source at url.
func seedFork(t *testing.T, s Store, owner, url, title string, tags []string, notes string) *model.UserRecipe {
	t.Helper()
	ctx := context.Background()

	key, err := ident.FromURL(url)
	require.NoError(t, err)
	src, err := s.UpsertSource(ctx, key, model.SourceKindURL)
	require.NoError(t, err)
	parse, err := s.RecordParse(ctx, ParseAttempt{
		SourceID:  src.ID,
		Method:    model.MethodDeterministic,
		Payload:   testRecipe(title),
		InputHash: "h",
		Success:   true,
	})
	require.NoError(t, err)
	fork, _, err := s.SaveFork(ctx, owner, parse, tags, notes)
	require.NoError(t, err)
	return fork
}

func TestListForks_Pagination(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := range 7 {
		seedFork(t, s, "alice", fmt.Sprintf("https://example.com/r%d", i), fmt.Sprintf("Recipe %d", i), nil, "")
		time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	}

	page1, err := s.ListForks(ctx, "alice", ListOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 3)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextCursor)
	assert.Equal(t, "Recipe 6", page1.Items[0].Title, "newest first")

	page2, err := s.ListForks(ctx, "alice", ListOptions{Limit: 3, Cursor: page1.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 3)
	assert.True(t, page2.HasMore)

	page3, err := s.ListForks(ctx, "alice", ListOptions{Limit: 3, Cursor: page2.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.False(t, page3.HasMore)
	assert.Empty(t, page3.NextCursor)

	seen := map[string]bool{}
	for _, p := range [][]model.ForkSummary{page1.Items, page2.Items, page3.Items} {
		for _, item := range p {
			assert.False(t, seen[item.ID], "no duplicates across pages")
			seen[item.ID] = true
		}
	}
	assert.Len(t, seen, 7)
}

func TestListForks_StableUnderConcurrentInserts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for i := range 4 {
		seedFork(t, s, "alice", fmt.Sprintf("https://example.com/s%d", i), fmt.Sprintf("Old %d", i), nil, "")
		time.Sleep(2 * time.Millisecond)
	}

	page1, err := s.ListForks(ctx, "alice", ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)

	// New saves land between pages; they sort newer than the cursor and
	// must not shift or repeat the remaining items.
	time.Sleep(2 * time.Millisecond)
	seedFork(t, s, "alice", "https://example.com/new1", "New 1", nil, "")
	seedFork(t, s, "alice", "https://example.com/new2", "New 2", nil, "")

	page2, err := s.ListForks(ctx, "alice", ListOptions{Limit: 2, Cursor: page1.NextCursor})
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	assert.Equal(t, "Old 1", page2.Items[0].Title)
	assert.Equal(t, "Old 0", page2.Items[1].Title)

	for _, earlier := range page1.Items {
		for _, later := range page2.Items {
			assert.NotEqual(t, earlier.ID, later.ID)
		}
	}
}

func TestListForks_TagFilter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seedFork(t, s, "alice", "https://example.com/t1", "Soup", []string{"dinner", "quick"}, "")
	seedFork(t, s, "alice", "https://example.com/t2", "Cake", []string{"dessert"}, "")
	seedFork(t, s, "alice", "https://example.com/t3", "Stew", []string{"dinner", "slow"}, "")

	page, err := s.ListForks(ctx, "alice", ListOptions{Tags: []string{"dinner"}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = s.ListForks(ctx, "alice", ListOptions{Tags: []string{"dinner", "quick"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Soup", page.Items[0].Title)
}

func TestListForks_FilterBeforePagination(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Interleave tagged and untagged so naive post-filter pagination would
	// return short pages and a wrong HasMore.
	for i := range 6 {
		tags := []string{"keep"}
		if i%2 == 1 {
			tags = []string{"skip"}
		}
		seedFork(t, s, "alice", fmt.Sprintf("https://example.com/u%d", i), fmt.Sprintf("R%d", i), tags, "")
		time.Sleep(2 * time.Millisecond)
	}

	page1, err := s.ListForks(ctx, "alice", ListOptions{Limit: 2, Tags: []string{"keep"}})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.True(t, page1.HasMore, "has_more reflects the filtered set")

	page2, err := s.ListForks(ctx, "alice", ListOptions{Limit: 2, Tags: []string{"keep"}, Cursor: page1.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page2.Items, 1)
	assert.False(t, page2.HasMore)
}

func TestListForks_Search(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seedFork(t, s, "alice", "https://example.com/v1", "Chicken Paprikash", nil, "")
	seedFork(t, s, "alice", "https://example.com/v2", "Beef Stew", nil, "grandma's recipe")

	page, err := s.ListForks(ctx, "alice", ListOptions{Search: "paprikash"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Chicken Paprikash", page.Items[0].Title)

	// Ingredient text is searchable too; testRecipe always includes flour.
	page, err = s.ListForks(ctx, "alice", ListOptions{Search: "FLOUR"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = s.ListForks(ctx, "alice", ListOptions{Search: "grandma"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Beef Stew", page.Items[0].Title)
}

func TestListForks_ModifiedOnly(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seedFork(t, s, "alice", "https://example.com/w1", "Plain", nil, "")
	modified := seedFork(t, s, "alice", "https://example.com/w2", "Tweaked", nil, "")
	_, err := s.UpdateFork(ctx, "alice", modified.ID, model.ForkPatch{Payload: testRecipe("Tweaked v2")})
	require.NoError(t, err)

	page, err := s.ListForks(ctx, "alice", ListOptions{ModifiedOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, modified.ID, page.Items[0].ID)
}

func TestListForks_OwnerScoped(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seedFork(t, s, "alice", "https://example.com/x1", "Alice's", nil, "")
	seedFork(t, s, "bob", "https://example.com/x2", "Bob's", nil, "")

	page, err := s.ListForks(ctx, "alice", ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Alice's", page.Items[0].Title)
}

func TestCursorCodec(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	enc := encodeCursor(at, "fork-123")

	dec, err := decodeCursor(enc)
	require.NoError(t, err)
	assert.True(t, dec.CreatedAt.Equal(at))
	assert.Equal(t, "fork-123", dec.ID)

	empty, err := decodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = decodeCursor("not-base64!!!")
	assert.Error(t, err)

	_, err = decodeCursor("e30") // "{}", missing fields
	assert.Error(t, err)
}

func TestCursorAfter(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &cursor{CreatedAt: at, ID: "m"}

	assert.True(t, c.after(at.Add(-time.Second), "z"), "older rows are after the cursor")
	assert.False(t, c.after(at.Add(time.Second), "a"), "newer rows are before the cursor")
	assert.True(t, c.after(at, "a"), "tie broken by id descending")
	assert.False(t, c.after(at, "z"))
	assert.False(t, c.after(at, "m"), "the cursor row itself is excluded")
}
