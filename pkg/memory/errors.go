package memory

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// returned no vector. Non-fatal: Add keeps the row, Search degrades to
	// keyword-only for that call.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexUnavailable indicates the FTS5 or sqlite-vec extension is
	// missing in the running environment. Queries against the missing index
	// return empty instead of surfacing this.
	ErrIndexUnavailable = errors.New("index unavailable")
)
