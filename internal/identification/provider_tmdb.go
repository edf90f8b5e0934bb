package identification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"curator/internal/identification/tmdb"
	"curator/internal/media"
	"curator/internal/services"
)

// TMDBClient defines the subset of TMDB client functionality used by the provider.
type TMDBClient interface {
	SearchMovie(ctx context.Context, query string, year int) (*tmdb.Response, error)
	SearchTV(ctx context.Context, query string, year int) (*tmdb.Response, error)
	GetMovieDetails(ctx context.Context, movieID int64) (*tmdb.Result, error)
	GetTVDetails(ctx context.Context, showID int64) (*tmdb.Result, error)
}

// TMDBProvider adapts the TMDB client to Provider, spacing requests by a
// minimum interval.
type TMDBProvider struct {
	client     TMDBClient
	rateLimit  time.Duration
	mu         sync.Mutex
	lastLookup time.Time
}

// NewTMDBProvider wraps client. interval is the minimum spacing between calls.
func NewTMDBProvider(client TMDBClient, interval time.Duration) *TMDBProvider {
	return &TMDBProvider{
		client:     client,
		rateLimit:  interval,
		lastLookup: time.Unix(0, 0),
	}
}

// Search queries movies, shows, or both when kind is unknown.
func (p *TMDBProvider) Search(ctx context.Context, title string, kind media.Kind, year int) ([]Candidate, error) {
	var results []kindedResult
	if kind != media.KindSeries {
		resp, err := p.search(ctx, title, year, media.KindFilm)
		if err != nil {
			return nil, err
		}
		results = append(results, resp...)
	}
	if kind != media.KindFilm {
		resp, err := p.search(ctx, title, year, media.KindSeries)
		if err != nil {
			return nil, err
		}
		results = append(results, resp...)
	}
	return toCandidates(results), nil
}

type kindedResult struct {
	result tmdb.Result
	kind   media.Kind
}

func (p *TMDBProvider) search(ctx context.Context, title string, year int, kind media.Kind) ([]kindedResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	var (
		resp *tmdb.Response
		err  error
	)
	if kind == media.KindSeries {
		resp, err = p.client.SearchTV(ctx, title, year)
	} else {
		resp, err = p.client.SearchMovie(ctx, title, year)
	}
	if err != nil {
		return nil, providerError("search", title, err)
	}
	if resp == nil {
		return nil, nil
	}
	out := make([]kindedResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, kindedResult{result: r, kind: kind})
	}
	return out, nil
}

// toCandidates normalizes popularity against the result set's maximum. When
// every popularity is zero, position decay stands in.
func toCandidates(results []kindedResult) []Candidate {
	maxPopularity := 0.0
	for _, r := range results {
		if r.result.Popularity > maxPopularity {
			maxPopularity = r.result.Popularity
		}
	}
	candidates := make([]Candidate, 0, len(results))
	for idx, r := range results {
		title := strings.TrimSpace(r.result.DisplayTitle())
		if r.result.ID <= 0 || title == "" {
			continue
		}
		match := 1.0 / float64(idx+1)
		if maxPopularity > 0 {
			match = r.result.Popularity / maxPopularity
		}
		candidates = append(candidates, Candidate{
			ExternalID: r.result.ID,
			Kind:       r.kind,
			Title:      title,
			Year:       r.result.Year(),
			MatchScore: match,
			Rank:       idx,
		})
	}
	return candidates
}

// Lookup fetches one title by ID. With no kind, films are tried before series.
func (p *TMDBProvider) Lookup(ctx context.Context, externalID int64, kind media.Kind) (Candidate, error) {
	if externalID <= 0 {
		return Candidate{}, fmt.Errorf("%w: external id must be positive", services.ErrValidation)
	}
	kinds := []media.Kind{kind}
	if !kind.Valid() {
		kinds = []media.Kind{media.KindFilm, media.KindSeries}
	}
	var lastErr error
	for _, k := range kinds {
		if err := p.wait(ctx); err != nil {
			return Candidate{}, err
		}
		var (
			result *tmdb.Result
			err    error
		)
		if k == media.KindSeries {
			result, err = p.client.GetTVDetails(ctx, externalID)
		} else {
			result, err = p.client.GetMovieDetails(ctx, externalID)
		}
		if err != nil {
			lastErr = err
			if tmdb.IsNotFound(err) {
				continue
			}
			return Candidate{}, providerError("lookup", fmt.Sprint(externalID), err)
		}
		return Candidate{
			ExternalID: result.ID,
			Kind:       k,
			Title:      strings.TrimSpace(result.DisplayTitle()),
			Year:       result.Year(),
			MatchScore: 1,
		}, nil
	}
	return Candidate{}, services.Wrap(services.ErrNotFound, "tmdb", "lookup", fmt.Sprintf("external id %d", externalID), lastErr)
}

func (p *TMDBProvider) wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	wait := p.rateLimit - time.Since(p.lastLookup)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.lastLookup = time.Now()
	return nil
}

func providerError(operation, subject string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrProviderUnavailable, "tmdb", operation, subject, err)
}
