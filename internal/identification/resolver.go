package identification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/services"
)

var (
	ErrAmbiguousMatch      = services.ErrAmbiguousMatch
	ErrProviderUnavailable = services.ErrProviderUnavailable
)

const (
	DefaultConfidenceThreshold = 0.80
	DefaultAmbiguityMargin     = 0.05
	defaultNegativeTTL         = 10 * time.Minute
)

// Resolver maps parsed names to canonical identities. Lookups consult the
// in-memory cache, then the persisted lookup cache, and only then the
// provider; concurrent misses on the same key share one provider call.
type Resolver struct {
	provider  Provider
	store     IdentityStore
	logger    *slog.Logger
	threshold float64
	margin    float64
	cache     *lookupCache
	group     singleflight.Group

	providerCalls atomic.Int64
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithPolicy overrides the acceptance threshold and the required lead over
// the runner-up candidate.
func WithPolicy(threshold, margin float64) Option {
	return func(r *Resolver) {
		if threshold > 0 {
			r.threshold = threshold
		}
		if margin >= 0 {
			r.margin = margin
		}
	}
}

// WithNegativeTTL sets how long an ambiguous outcome is remembered. Zero
// disables negative caching.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache.negativeTTL = ttl
	}
}

// NewResolver constructs a Resolver.
func NewResolver(provider Provider, store IdentityStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		provider:  provider,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "resolver"),
		threshold: DefaultConfidenceThreshold,
		margin:    DefaultAmbiguityMargin,
		cache:     newLookupCache(defaultNegativeTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProviderCalls reports how many searches reached the provider.
func (r *Resolver) ProviderCalls() int64 {
	return r.providerCalls.Load()
}

// Resolve returns the canonical identity for parsed along with its
// confidence score. It fails with ErrAmbiguousMatch when no candidate is
// confidently ahead and ErrProviderUnavailable when the provider cannot be
// reached. No identity is ever fabricated.
func (r *Resolver) Resolve(ctx context.Context, parsed nameparse.Result) (catalog.Identity, float64, error) {
	if strings.TrimSpace(parsed.Title) == "" {
		return catalog.Identity{}, 0, fmt.Errorf("%w: empty title", nameparse.ErrParseFailure)
	}
	key := LookupKey(parsed.Kind, parsed.Title, parsed.Year)
	logger := logging.WithContext(ctx, r.logger).With(logging.String("lookup_key", key))

	if res, ok := r.cache.get(key); ok {
		logger.Debug("lookup served from memory", logging.String(logging.FieldEventType, "lookup_cache_hit"))
		return res.identity, res.score, res.err
	}

	hit, found, err := r.store.CachedLookup(ctx, key)
	if err != nil {
		return catalog.Identity{}, 0, err
	}
	if found {
		r.cache.put(key, resolution{identity: hit.Identity, score: hit.Score})
		logger.Debug("lookup served from store", logging.String(logging.FieldEventType, "lookup_store_hit"))
		return hit.Identity, hit.Score, nil
	}

	value, err, shared := r.group.Do(key, func() (any, error) {
		if res, ok := r.cache.get(key); ok {
			return res, res.err
		}
		return r.resolveRemote(ctx, logger, key, parsed)
	})
	if shared {
		logger.Debug("lookup shared in-flight provider call", logging.String(logging.FieldEventType, "lookup_shared"))
	}
	if err != nil {
		return catalog.Identity{}, 0, err
	}
	res := value.(resolution)
	return res.identity, res.score, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, logger *slog.Logger, key string, parsed nameparse.Result) (resolution, error) {
	r.providerCalls.Add(1)
	candidates, err := r.provider.Search(ctx, parsed.Title, parsed.Kind, parsed.Year)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resolution{}, ctxErr
		}
		if !errors.Is(err, ErrProviderUnavailable) {
			err = services.Wrap(ErrProviderUnavailable, "resolver", "search", parsed.Title, err)
		}
		return resolution{}, err
	}

	ranked := rankCandidates(parsed, candidates)
	if err := r.accept(ranked); err != nil {
		logger.Info("lookup ambiguous",
			logging.String(logging.FieldEventType, "lookup_ambiguous"),
			logging.String("title", parsed.Title),
			logging.Int("year", parsed.Year),
			logging.Int("candidates", len(ranked)),
			logging.String("reason", err.Error()),
		)
		r.cache.putNegative(key, err)
		return resolution{}, err
	}

	best := ranked[0]
	identity, err := r.store.UpsertIdentity(ctx, catalog.IdentityInput{
		ExternalID: best.ExternalID,
		Kind:       best.Kind,
		Title:      best.Title,
		Year:       best.Year,
	})
	if err != nil {
		return resolution{}, err
	}
	if err := r.store.StoreLookup(ctx, key, identity.ID, best.score); err != nil {
		return resolution{}, err
	}
	res := resolution{identity: identity, score: best.score}
	r.cache.put(key, res)

	logger.Info("lookup resolved",
		logging.String(logging.FieldEventType, "lookup_resolved"),
		logging.Int64(logging.FieldExternalID, identity.ExternalID),
		logging.String("kind", string(identity.Kind)),
		logging.String("title", identity.Title),
		logging.Int("year", identity.Year),
		logging.Float64("score", best.score),
	)
	return res, nil
}

func (r *Resolver) accept(ranked []scoredCandidate) error {
	if len(ranked) == 0 {
		return fmt.Errorf("%w: no candidates", ErrAmbiguousMatch)
	}
	top := ranked[0]
	if top.score < r.threshold {
		return fmt.Errorf("%w: best candidate %d scored %.3f below threshold %.2f", ErrAmbiguousMatch, top.ExternalID, top.score, r.threshold)
	}
	if len(ranked) > 1 {
		if lead := top.score - ranked[1].score; lead < r.margin {
			return fmt.Errorf("%w: candidates %d and %d within %.3f", ErrAmbiguousMatch, top.ExternalID, ranked[1].ExternalID, lead)
		}
	}
	return nil
}

// Lookup fetches an identity by external ID from the provider and persists
// it. Used for operator overrides where the ID is already known.
func (r *Resolver) Lookup(ctx context.Context, externalID int64, kind media.Kind) (catalog.Identity, error) {
	candidate, err := r.provider.Lookup(ctx, externalID, kind)
	if err != nil {
		return catalog.Identity{}, err
	}
	return r.store.UpsertIdentity(ctx, catalog.IdentityInput{
		ExternalID: candidate.ExternalID,
		Kind:       candidate.Kind,
		Title:      candidate.Title,
		Year:       candidate.Year,
	})
}
