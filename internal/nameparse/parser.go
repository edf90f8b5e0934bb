package nameparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"curator/internal/media"
	"curator/internal/services"
)

// ErrParseFailure marks names that carry no identifiable title or an
// incomplete episode position.
var ErrParseFailure = services.ErrParseFailure

const minPlausibleYear = 1920

// Input is the pair of names available for one source entry. Name is the
// item as presented (usually the release directory); FallbackName is the
// path of the file relative to that item.
type Input struct {
	Name         string
	FallbackName string
	KindHint     media.Kind
}

// Result is the parsed identity hint. Season, Episode, and EpisodeEnd are
// zero for films; EpisodeEnd is set only for multi-episode files.
type Result struct {
	Title      string
	Year       int
	Kind       media.Kind
	Season     int
	Episode    int
	EpisodeEnd int
	Quality    int
}

// Strategy parses names into results. Implementations must be pure.
type Strategy interface {
	Parse(Input) (Result, error)
}

// Parser is the default release-name Strategy.
type Parser struct {
	now func() time.Time
}

// Option customizes a Parser.
type Option func(*Parser)

// WithClock fixes the reference time used for year plausibility.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse derives a Result from the primary name, consulting the fallback when
// the primary title is meaningless or lacks the episode position.
func (p *Parser) Parse(in Input) (Result, error) {
	primary := p.parseName(in.Name, in.Name)
	fallbackName := strings.TrimSpace(in.FallbackName)
	var fallback parsedName
	if fallbackName != "" {
		fallback = p.parseFallback(fallbackName)
	}

	chosen, other := primary, fallback
	if IsMeaningless(primary.title) {
		if fallbackName == "" || IsMeaningless(fallback.title) {
			return Result{}, fmt.Errorf("%w: no meaningful title in %q (fallback %q)", ErrParseFailure, in.Name, in.FallbackName)
		}
		chosen, other = fallback, primary
	}

	result := Result{
		Title:   chosen.title,
		Year:    chosen.year,
		Quality: Quality(strings.TrimSpace(in.Name + " " + in.FallbackName)),
	}
	if result.Year == 0 {
		result.Year = other.year
	}

	// The primary is usually a season-pack directory, so the file name wins
	// for the episode position.
	episodeSource := parsedName{}
	switch {
	case fallback.episode > 0:
		episodeSource = fallback
	case primary.episode > 0:
		episodeSource = primary
	}

	series := primary.seriesMarker || fallback.seriesMarker || in.KindHint == media.KindSeries
	if !series {
		result.Kind = media.KindFilm
		return result, nil
	}

	result.Kind = media.KindSeries
	if episodeSource.episode == 0 {
		return Result{}, fmt.Errorf("%w: series entry %q has no episode marker", ErrParseFailure, displayFor(in))
	}
	result.Episode = episodeSource.episode
	result.EpisodeEnd = episodeSource.episodeEnd
	result.Season = firstPositive(episodeSource.season, fallback.season, primary.season, 1)
	return result, nil
}

type parsedName struct {
	title        string
	year         int
	season       int
	episode      int
	episodeEnd   int
	seriesMarker bool
}

func (p *Parser) parseFallback(name string) parsedName {
	name = strings.Trim(strings.ReplaceAll(name, "\\", "/"), "/")
	base := name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		base = name[idx+1:]
	}
	parsed := p.parseName(base, name)
	if IsMeaningless(parsed.title) && base != name {
		whole := p.parseName(name, name)
		parsed.title = whole.title
		if parsed.year == 0 {
			parsed.year = whole.year
		}
	}
	return parsed
}

// parseName parses one name. context is searched for a season number when
// the name itself carries only an episode number.
func (p *Parser) parseName(raw, context string) parsedName {
	work := normalizeName(raw)
	out := parsedName{}
	if work == "" {
		return out
	}
	cut := len(work)
	mark := func(start int) {
		if start >= 0 && start < cut {
			cut = start
		}
	}

	if m := multiEpisodePattern.FindStringSubmatchIndex(work); m != nil {
		out.season = atoiSpan(work, m, 1)
		out.episode = atoiSpan(work, m, 2)
		out.episodeEnd = atoiSpan(work, m, 3)
		if out.episodeEnd == 0 {
			out.episodeEnd = atoiSpan(work, m, 4)
		}
		out.seriesMarker = true
		mark(m[0])
	} else if m := seasonEpisodeWords.FindStringSubmatchIndex(work); m != nil {
		out.season = atoiSpan(work, m, 1)
		out.episode = atoiSpan(work, m, 2)
		out.seriesMarker = true
		mark(m[0])
	} else if m := crossEpisodePattern.FindStringSubmatchIndex(work); m != nil {
		out.season = atoiSpan(work, m, 1)
		out.episode = atoiSpan(work, m, 2)
		out.seriesMarker = true
		mark(m[0])
	} else if m := episodeWordPattern.FindStringSubmatchIndex(work); m != nil {
		out.episode = atoiSpan(work, m, 1)
		out.seriesMarker = true
		mark(m[0])
	} else if m := episodeOnlyPattern.FindStringSubmatchIndex(work); m != nil {
		out.episode = atoiSpan(work, m, 1)
		out.seriesMarker = true
		mark(m[0])
	}
	if out.episodeEnd <= out.episode {
		out.episodeEnd = 0
	}

	for _, pattern := range []*regexp.Regexp{seasonWordPattern, seasonShortPattern} {
		if m := pattern.FindStringSubmatchIndex(work); m != nil {
			if out.season == 0 {
				out.season = atoiSpan(work, m, 1)
			}
			out.seriesMarker = true
			mark(m[0])
		}
	}
	if out.season == 0 && out.episode > 0 && context != raw {
		ctx := normalizeName(context)
		for _, pattern := range []*regexp.Regexp{seasonWordPattern, seasonShortPattern} {
			if m := pattern.FindStringSubmatchIndex(ctx); m != nil {
				out.season = atoiSpan(ctx, m, 1)
				break
			}
		}
	}
	if loc := seriesMarkerPattern.FindStringIndex(work); loc != nil {
		out.seriesMarker = true
		mark(loc[0])
	}

	tagStart := len(work)
	for i, loc := range tokenPattern.FindAllStringIndex(work, -1) {
		if i == 0 {
			continue
		}
		if isReleaseTag(work[loc[0]:loc[1]]) {
			tagStart = loc[0]
			break
		}
	}

	// The year is the last plausible four-digit number that precedes the
	// release tags (and, for episodes, the episode marker). A year in first
	// position belongs to the title ("2001 A Space Odyssey").
	yearLimit := tagStart
	if out.seriesMarker && cut < yearLimit {
		yearLimit = cut
	}
	maxYear := p.now().Year() + 1
	yearStart := -1
	for _, m := range yearPattern.FindAllStringSubmatchIndex(work, -1) {
		if m[0] == 0 || m[0] >= yearLimit {
			continue
		}
		year := atoiSpan(work, m, 1)
		if year < minPlausibleYear || year > maxYear {
			continue
		}
		out.year = year
		yearStart = m[0]
	}
	mark(yearStart)
	mark(tagStart)

	title := strings.Trim(strings.TrimSpace(work[:cut]), " -")
	out.title = spacePattern.ReplaceAllString(title, " ")
	return out
}

func normalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	name = videoExtPattern.ReplaceAllString(name, "")
	name = leadingGroupPat.ReplaceAllString(name, "")
	name = codecDotPattern.ReplaceAllString(name, "$1$2")
	name = audioDotPattern.ReplaceAllString(name, "$1$2$3")
	name = separatorPattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(name, " "))
}

func atoiSpan(s string, m []int, group int) int {
	start, end := m[2*group], m[2*group+1]
	if start < 0 || end < 0 {
		return 0
	}
	v, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0
	}
	return v
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func displayFor(in Input) string {
	if strings.TrimSpace(in.FallbackName) != "" {
		return in.Name + "/" + in.FallbackName
	}
	return in.Name
}
