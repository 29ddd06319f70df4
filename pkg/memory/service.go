package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/mnemo/internal/observability"
	"github.com/harun/mnemo/internal/tracing"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "mnemo.memory"

// Service is the lifecycle entry point for the subsystem. Construct one per
// database at startup and pass the handle to callers; configuration is
// immutable after New returns.
type Service struct {
	cfg      Config
	store    *Store
	embedder *Generator
	engine   *engine

	sweeper   *cron.Cron
	closeOnce sync.Once
	closeErr  error
}

// New opens the store, wires the embedding generator and retrieval engine,
// and optionally starts the expiry sweep.
func New(cfg Config) (*Service, error) {
	observability.EnsureRegistered()

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	provider := cfg.Provider
	if provider == nil {
		var err error
		provider, err = NewOllamaProvider(cfg.EmbeddingHost)
		if err != nil {
			return nil, err
		}
	}

	embedder, err := NewGenerator(provider, cfg.EmbeddingModel, cfg.CacheSize, cfg.Logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg.DBPath, cfg.Logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		engine:   newEngine(store, embedder, cfg.Logger, cfg.DenseLimit, cfg.SparseLimit, cfg.FuseTopK, cfg.TopN),
	}

	if cfg.MaintenanceSchedule != "" {
		sweeper := cron.New()
		if _, err := sweeper.AddFunc(cfg.MaintenanceSchedule, func() {
			if _, err := s.EvictExpired(context.Background()); err != nil {
				cfg.Logger.Warn().Err(err).Msg("Expiry sweep failed")
			}
		}); err != nil {
			store.Close()
			return nil, fmt.Errorf("invalid maintenance schedule: %w", err)
		}
		sweeper.Start()
		s.sweeper = sweeper
	}

	s.refreshEntriesGauge(context.Background())
	cfg.Logger.Info().
		Str("db", cfg.DBPath).
		Str("embedding_model", cfg.EmbeddingModel).
		Msg("Memory service initialized")

	return s, nil
}

// Add inserts a new memory and returns its id. The canonical row and keyword
// entry commit first; the vector write is best-effort and a failure there is
// logged, never rolled back.
func (s *Service) Add(ctx context.Context, in AddInput) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.add",
		attribute.String("user_id", in.UserID),
		attribute.String("app_name", in.AppName),
		attribute.String("memory_type", string(in.Type)),
	)
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemoryAdd(time.Since(start)) }()

	logger := tracing.LoggerFromContext(ctx, s.cfg.Logger)

	if err := in.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	id, err := s.store.Insert(ctx, in, time.Now().Unix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if vec, err := s.embedder.EmbedDocument(ctx, in.Text); err != nil {
		logger.Warn().Err(err).Int64("id", id).Msg("Embedding failed, memory stored without vector")
	} else if err := s.store.PutVector(ctx, id, vec); err != nil {
		logger.Warn().Err(err).Int64("id", id).Msg("Vector write failed, memory reachable by keyword only")
	}

	s.refreshEntriesGauge(ctx)

	logger.Debug().Int64("id", id).Msg("Memory added")
	return id, nil
}

// Search returns the most relevant memories for query in the (userID,
// appName) scope. It never errors because an optional signal path is down; it
// only returns fewer or zero results.
func (s *Service) Search(ctx context.Context, query, userID, appName string) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("user_id", userID),
		attribute.String("app_name", appName),
	)
	defer span.End()

	start := time.Now()
	results, err := s.engine.search(ctx, query, userID, appName)
	observability.RecordMemorySearch(time.Since(start), len(results))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// GetByUser lists memories in the scope, newest first, optionally filtered by
// type.
func (s *Service) GetByUser(ctx context.Context, userID, appName string, memType *MemoryType) ([]Memory, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.get_by_user",
		attribute.String("user_id", userID),
		attribute.String("app_name", appName),
	)
	defer span.End()

	memories, err := s.store.GetByUser(ctx, userID, appName, memType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return memories, nil
}

// Delete removes a memory and its index entries, reporting whether a row
// existed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.delete",
		attribute.Int64("memory_id", id),
	)
	defer span.End()

	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	observability.RecordMemoryDelete(removed)
	if removed {
		s.refreshEntriesGauge(ctx)
	}
	return removed, nil
}

// EvictExpired removes rows whose expires_at has passed. Retrieval never
// filters on expiry; this maintenance sweep is the only place it is enforced.
func (s *Service) EvictExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.evict_expired")
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordMemoryEvict(time.Since(start)) }()

	removed, err := s.store.DeleteExpired(ctx, time.Now().Unix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return removed, err
	}

	if removed > 0 {
		s.refreshEntriesGauge(ctx)
		logger := tracing.LoggerFromContext(ctx, s.cfg.Logger)
		logger.Info().
			Int64("removed", removed).
			Msg("Evicted expired memories")
	}
	return removed, nil
}

// Close stops the expiry sweep and closes the store. Safe to call more than
// once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}

func (s *Service) refreshEntriesGauge(ctx context.Context) {
	if n, err := s.store.Count(ctx); err == nil {
		observability.SetMemoryEntries(n)
	}
}
