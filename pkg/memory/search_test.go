package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"plain", "dark mode", "dark mode"},
		{"punctuation stripped", "what's the user's plan?", "whats the users plan"},
		{"symbols only", "??? !!!", " "},
		{"empty", "", ""},
		{"fts operators stripped", `"dark" OR (mode) NEAR*`, "dark OR mode NEAR"},
		{"digits kept", "meeting at 15h30", "meeting at 15h30"},
		{"unicode letters kept", "café preferences", "café preferences"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeQuery(tt.query))
		})
	}
}

func TestFtsMatchQuery(t *testing.T) {
	assert.Equal(t, `"dark" OR "mode"`, ftsMatchQuery("dark mode"))
	assert.Equal(t, `"single"`, ftsMatchQuery("single"))
	assert.Equal(t, "", ftsMatchQuery("   "))

	// Operator words stay literal tokens, never FTS5 syntax.
	assert.Equal(t, `"dark" OR "OR" OR "light"`, ftsMatchQuery("dark OR light"))
	assert.Equal(t, `"not" OR "and" OR "NOT"`, ftsMatchQuery("not and NOT"))
}

func mem(id int64) Memory {
	return Memory{ID: id, Text: "m"}
}

func TestFuseRanked_BothListsBeatSingleList(t *testing.T) {
	// X is rank 1 in both lists, Y is rank 1 in only one: X must win.
	x, y := mem(1), mem(2)
	dense := []Memory{x}
	sparse := []Memory{x, y}

	fused := fuseRanked(dense, sparse)
	require.Len(t, fused, 2)

	assert.Equal(t, int64(1), fused[0].memory.ID)
	assert.Greater(t, fused[0].score, fused[1].score)
}

func TestFuseRanked_Contributions(t *testing.T) {
	fused := fuseRanked([]Memory{mem(7)}, []Memory{mem(7)})
	require.Len(t, fused, 1)

	// 1/(60+1) from each list
	assert.InDelta(t, 2.0/61.0, fused[0].score, 1e-12)

	fused = fuseRanked([]Memory{mem(1), mem(2), mem(3)})
	require.Len(t, fused, 3)
	assert.InDelta(t, 1.0/61.0, fused[0].score, 1e-12)
	assert.InDelta(t, 1.0/62.0, fused[1].score, 1e-12)
	assert.InDelta(t, 1.0/63.0, fused[2].score, 1e-12)
}

func TestFuseRanked_DeduplicatesByID(t *testing.T) {
	fused := fuseRanked(
		[]Memory{mem(1), mem(2)},
		[]Memory{mem(2), mem(1)},
	)
	assert.Len(t, fused, 2)
}

func TestFuseRanked_TieBreaksByID(t *testing.T) {
	// Same rank in disjoint lists gives identical scores; order must still
	// be deterministic.
	fused := fuseRanked([]Memory{mem(9)}, []Memory{mem(4)})
	require.Len(t, fused, 2)
	assert.Equal(t, int64(4), fused[0].memory.ID)
	assert.Equal(t, int64(9), fused[1].memory.ID)
}

func TestFuseRanked_EmptyLists(t *testing.T) {
	assert.Empty(t, fuseRanked(nil, nil))
	assert.Len(t, fuseRanked([]Memory{mem(1)}, nil), 1)
}
