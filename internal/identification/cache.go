package identification

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"curator/internal/catalog"
	"curator/internal/media"
	"curator/internal/textutil"
)

// LookupKey builds the cache key kind|normalizedTitle|year shared by the
// in-memory cache, the persisted lookup cache, and the single-flight group.
func LookupKey(kind media.Kind, title string, year int) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte('|')
	b.WriteString(textutil.CompactTitle(title))
	b.WriteByte('|')
	if year > 0 {
		b.WriteString(strconv.Itoa(year))
	}
	return b.String()
}

// resolution is a cached outcome. err is set for remembered ambiguous matches.
type resolution struct {
	identity catalog.Identity
	score    float64
	err      error
}

type negativeEntry struct {
	res     resolution
	expires time.Time
}

// lookupCache holds positive results for the process lifetime and ambiguous
// outcomes for negativeTTL, so repeated names within a cycle cost one search.
type lookupCache struct {
	mu          sync.RWMutex
	positive    map[string]resolution
	negative    map[string]negativeEntry
	negativeTTL time.Duration
	now         func() time.Time
}

func newLookupCache(negativeTTL time.Duration) *lookupCache {
	return &lookupCache{
		positive:    make(map[string]resolution),
		negative:    make(map[string]negativeEntry),
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

func (c *lookupCache) get(key string) (resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if res, ok := c.positive[key]; ok {
		return res, true
	}
	if neg, ok := c.negative[key]; ok && c.now().Before(neg.expires) {
		return neg.res, true
	}
	return resolution{}, false
}

func (c *lookupCache) put(key string, res resolution) {
	c.mu.Lock()
	c.positive[key] = res
	delete(c.negative, key)
	c.mu.Unlock()
}

func (c *lookupCache) putNegative(key string, err error) {
	if c.negativeTTL <= 0 {
		return
	}
	c.mu.Lock()
	c.negative[key] = negativeEntry{res: resolution{err: err}, expires: c.now().Add(c.negativeTTL)}
	c.mu.Unlock()
}
