package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/rs/zerolog"
)

// rrfK is the rank-fusion constant: a row at 1-based rank r in a list
// contributes 1/(rrfK+r) to its fused score.
const rrfK = 60

// engine runs dense and sparse retrieval concurrently and fuses the two
// ranked lists with Reciprocal Rank Fusion. Stateless between calls; the
// Store is the only source of truth.
type engine struct {
	store    *Store
	embedder *Generator
	logger   zerolog.Logger

	denseLimit  int
	sparseLimit int
	fuseTopK    int
	topN        int
}

func newEngine(store *Store, embedder *Generator, logger zerolog.Logger, denseLimit, sparseLimit, fuseTopK, topN int) *engine {
	return &engine{
		store:       store,
		embedder:    embedder,
		logger:      logger,
		denseLimit:  denseLimit,
		sparseLimit: sparseLimit,
		fuseTopK:    fuseTopK,
		topN:        topN,
	}
}

// search returns up to topN results ordered by descending fused score. A
// query that sanitizes to nothing returns empty without error, and a failure
// in either retrieval path degrades that path to zero rows.
func (e *engine) search(ctx context.Context, query, userID, appName string) ([]SearchResult, error) {
	logger := tracing.LoggerFromContext(ctx, e.logger)

	sanitized := sanitizeQuery(query)
	if strings.TrimSpace(sanitized) == "" {
		return []SearchResult{}, nil
	}

	var dense, sparse []Memory

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vec, err := e.embedder.EmbedQuery(ctx, sanitized)
		if err != nil {
			logger.Warn().Err(err).Msg("Query embedding failed, using keyword only")
			observability.RecordSearchDegraded("dense")
			return
		}
		rows, err := e.store.VectorSearch(ctx, vec, userID, appName, e.denseLimit)
		if err != nil {
			logger.Warn().Err(err).Msg("Vector search failed, using keyword only")
			observability.RecordSearchDegraded("dense")
			return
		}
		dense = rows
	}()

	go func() {
		defer wg.Done()
		rows, err := e.store.KeywordSearch(ctx, ftsMatchQuery(sanitized), userID, appName, e.sparseLimit)
		if err != nil {
			logger.Warn().Err(err).Msg("Keyword search failed, using vector only")
			observability.RecordSearchDegraded("sparse")
			return
		}
		sparse = rows
	}()

	wg.Wait()

	fused := fuseRanked(dense, sparse)

	// Fuse keeps a slightly larger pool than topN so a later re-ranking stage
	// has candidates to work with.
	if len(fused) > e.fuseTopK {
		fused = fused[:e.fuseTopK]
	}
	if len(fused) > e.topN {
		fused = fused[:e.topN]
	}

	results := make([]SearchResult, 0, len(fused))
	for _, c := range fused {
		results = append(results, SearchResult{
			Text:   c.memory.Text,
			Score:  c.score,
			Memory: c.memory,
		})
	}

	logger.Debug().
		Str("query", sanitized).
		Int("dense", len(dense)).
		Int("sparse", len(sparse)).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

type fusedCandidate struct {
	memory Memory
	score  float64
}

// fuseRanked merges ranked lists with Reciprocal Rank Fusion, deduplicating
// by id: a row in both lists sums both contributions, which is the entire
// point of fusion. The result is ordered by descending score, ties by
// ascending id for determinism.
func fuseRanked(lists ...[]Memory) []fusedCandidate {
	byID := make(map[int64]int)
	var candidates []fusedCandidate

	for _, list := range lists {
		for rank, m := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			if i, ok := byID[m.ID]; ok {
				candidates[i].score += contribution
				continue
			}
			byID[m.ID] = len(candidates)
			candidates = append(candidates, fusedCandidate{memory: m, score: contribution})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].memory.ID < candidates[j].memory.ID
	})

	return candidates
}

// sanitizeQuery drops every rune that is not a letter, digit or whitespace,
// so tokens never contain FTS5 syntax characters.
func sanitizeQuery(query string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, query)
}

// ftsMatchQuery quotes each sanitized token and OR-joins them. Quoting keeps
// operator words (OR, AND, NOT) literal, and is always safe because sanitized
// tokens carry no double quotes. Implicit-AND matching starves the sparse path
// for paraphrased queries; recall matters more here because fusion re-ranks
// anyway.
func ftsMatchQuery(sanitized string) string {
	tokens := strings.Fields(sanitized)
	for i, tok := range tokens {
		tokens[i] = `"` + tok + `"`
	}
	return strings.Join(tokens, " OR ")
}
