package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "memories.db")
	s, err := OpenStore(dbPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.True(t, s.ftsAvailable, "test build must have FTS5")
	require.True(t, s.vecAvailable, "test build must have sqlite-vec")
	return s
}

func testInput(userID, text string) AddInput {
	return AddInput{
		UserID:  userID,
		AppName: "app1",
		Type:    TypeProfile,
		Text:    text,
	}
}

func unitVector(seed int) []float32 {
	vec := make([]float32, VectorDim)
	for i := range vec {
		vec[i] = float32((seed+i)%17) + 1
	}
	return l2Normalize(vec)
}

func TestOpenStore_RequiresPath(t *testing.T) {
	_, err := OpenStore("", testLogger())
	assert.Error(t, err)
}

func TestInsert_AssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, testInput("u1", "first"), 100)
	require.NoError(t, err)
	id2, err := s.Insert(ctx, testInput("u1", "second"), 101)
	require.NoError(t, err)

	assert.Greater(t, id2, id1)
}

func TestInsert_DefaultsAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expires := int64(9999999999)
	in := AddInput{
		UserID:    "u1",
		AppName:   "app1",
		Type:      TypeSemantic,
		Text:      "tagged memory",
		Source:    "unit-test",
		Tags:      []string{"a", "b"},
		ExpiresAt: &expires,
	}
	id, err := s.Insert(ctx, in, 100)
	require.NoError(t, err)

	rows, err := s.GetByUser(ctx, "u1", "app1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	m := rows[0]
	assert.Equal(t, id, m.ID)
	assert.Equal(t, TypeSemantic, m.Type)
	assert.Equal(t, "tagged memory", m.Text)
	assert.Equal(t, "unit-test", m.Source)
	assert.Equal(t, 1, m.Importance) // default
	assert.Equal(t, []string{"a", "b"}, m.Tags)
	assert.Equal(t, int64(100), m.CreatedAt)
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, expires, *m.ExpiresAt)
}

func TestInsert_RejectsUnknownType(t *testing.T) {
	s := newTestStore(t)

	in := testInput("u1", "bad type")
	in.Type = MemoryType("procedural")

	_, err := s.Insert(context.Background(), in, 100)
	assert.Error(t, err) // CHECK constraint
}

func TestGetByUser_OrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := testInput("u1", "older")
	older.Type = TypeEpisodic
	_, err := s.Insert(ctx, older, 100)
	require.NoError(t, err)

	newer := testInput("u1", "newer")
	_, err = s.Insert(ctx, newer, 200)
	require.NoError(t, err)

	rows, err := s.GetByUser(ctx, "u1", "app1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "newer", rows[0].Text)
	assert.Equal(t, "older", rows[1].Text)

	episodic := TypeEpisodic
	rows, err = s.GetByUser(ctx, "u1", "app1", &episodic)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "older", rows[0].Text)
}

func TestGetByUser_Scoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testInput("alice", "alice memory"), 100)
	require.NoError(t, err)

	other := testInput("alice", "other app")
	other.AppName = "app2"
	_, err = s.Insert(ctx, other, 100)
	require.NoError(t, err)

	rows, err := s.GetByUser(ctx, "bob", "app1", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.GetByUser(ctx, "alice", "app1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice memory", rows[0].Text)
}

func TestKeywordSearch_MatchesAndScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testInput("u1", "the user prefers dark mode"), 100)
	require.NoError(t, err)
	_, err = s.Insert(ctx, testInput("u2", "dark chocolate is great"), 100)
	require.NoError(t, err)

	rows, err := s.KeywordSearch(ctx, "dark", "u1", "app1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)

	// Porter stemming: "preferences" matches "prefers"
	rows, err = s.KeywordSearch(ctx, "preferences", "u1", "app1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
}

func TestKeywordSearch_UnavailableReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	s.ftsAvailable = false

	rows, err := s.KeywordSearch(context.Background(), "anything", "u1", "app1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestVectorSearch_NearestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	idA, err := s.Insert(ctx, testInput("u1", "a"), 100)
	require.NoError(t, err)
	idB, err := s.Insert(ctx, testInput("u1", "b"), 100)
	require.NoError(t, err)

	vecA := unitVector(1)
	require.NoError(t, s.PutVector(ctx, idA, vecA))
	require.NoError(t, s.PutVector(ctx, idB, unitVector(900)))

	rows, err := s.VectorSearch(ctx, vecA, "u1", "app1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, idA, rows[0].ID, "exact vector should be nearest")
}

func TestVectorSearch_Scoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testInput("u1", "scoped"), 100)
	require.NoError(t, err)
	require.NoError(t, s.PutVector(ctx, id, unitVector(3)))

	rows, err := s.VectorSearch(ctx, unitVector(3), "u2", "app1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestVectorSearch_UnavailableReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	s.vecAvailable = false

	rows, err := s.VectorSearch(context.Background(), unitVector(1), "u1", "app1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPutVector_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testInput("u1", "m"), 100)
	require.NoError(t, err)

	err = s.PutVector(ctx, id, make([]float32, 10))
	assert.Error(t, err)

	s.vecAvailable = false
	err = s.PutVector(ctx, id, unitVector(1))
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestDelete_CascadesAndReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testInput("u1", "deletable entry"), 100)
	require.NoError(t, err)
	require.NoError(t, s.PutVector(ctx, id, unitVector(1)))

	removed, err := s.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	rows, err := s.KeywordSearch(ctx, "deletable", "u1", "app1", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	vrows, err := s.VectorSearch(ctx, unitVector(1), "u1", "app1", 10)
	require.NoError(t, err)
	assert.Empty(t, vrows)

	removed, err = s.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past, future := int64(50), int64(5000)

	expired := testInput("u1", "expired")
	expired.ExpiresAt = &past
	_, err := s.Insert(ctx, expired, 10)
	require.NoError(t, err)

	fresh := testInput("u1", "fresh")
	fresh.ExpiresAt = &future
	_, err = s.Insert(ctx, fresh, 10)
	require.NoError(t, err)

	_, err = s.Insert(ctx, testInput("u1", "eternal"), 10)
	require.NoError(t, err)

	removed, err := s.DeleteExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	rows, err := s.GetByUser(ctx, "u1", "app1", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Insert(ctx, testInput("u1", "one"), 100)
	require.NoError(t, err)

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
