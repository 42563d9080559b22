package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teambeacon/orgdex/internal/storage"
	"github.com/teambeacon/orgdex/pkg/types"
)

const (
	// DefaultCacheSize is the LRU entry limit when Config.CacheSize is zero.
	DefaultCacheSize = 1024
	// DefaultCacheTTL is how long a cached response stays valid when
	// Config.CacheTTL is zero.
	DefaultCacheTTL = 1 * time.Hour
)

// Config tunes the query cache. The zero value gives a cache of
// DefaultCacheSize entries with DefaultCacheTTL expiry.
type Config struct {
	CacheSize    int
	CacheTTL     time.Duration
	DisableCache bool
}

// Response contains ranked results and query metadata.
type Response struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry is a cached response with its expiration time.
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher runs full-text queries against a store and caches responses
// keyed by the whole request.
type Searcher struct {
	storage storage.Storage
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
	ttl     time.Duration
	enabled bool
}

// New creates a Searcher over store.
func New(store storage.Storage, cfg Config) *Searcher {
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		// Only fails for a non-positive size, which is handled above
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Searcher{
		storage: store,
		cache:   cache,
		ttl:     ttl,
		enabled: !cfg.DisableCache,
	}
}

// Search runs a ranked query, serving from the cache when it can. A
// served hit carries CacheHit true and the lookup's own duration.
func (s *Searcher) Search(ctx context.Context, req types.SearchRequest) (*Response, error) {
	startTime := time.Now()

	normalizeRequest(&req)

	if s.enabled {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	results, err := s.storage.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	response := &Response{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
	}

	if s.enabled && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// InvalidateCache drops every cached response. Indexing runs call it so
// served results never lag the store.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports how many responses are currently cached.
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// normalizeRequest canonicalizes a request so equivalent forms share one
// cache key. Mirrors what the store does before running the query.
func normalizeRequest(req *types.SearchRequest) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Limit <= 0 {
		req.Limit = storage.DefaultSearchLimit
	}
}

// checkCache returns a copy of the cached response for req, or nil on a
// miss. An expired entry counts as a miss and is removed on the way out.
func (s *Searcher) checkCache(req types.SearchRequest) *Response {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Removal needs the write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	// Copy while still holding the read lock so the entry cannot change
	// mid-copy.
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a copy of response under the request's key.
func (s *Searcher) storeInCache(req types.SearchRequest, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.ttl),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copyResponse deep-copies a response so cached entries are never
// aliased by callers.
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}

	dst := &Response{
		TotalResults: src.TotalResults,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]types.SearchResult, len(src.Results)),
	}

	for i, r := range src.Results {
		dst.Results[i] = r
		// Metadata is a map, so each copy gets its own. The values are
		// decoded JSON and treated as read-only.
		if r.Metadata != nil {
			meta := make(types.Record, len(r.Metadata))
			for k, v := range r.Metadata {
				meta[k] = v
			}
			dst.Results[i].Metadata = meta
		}
	}

	return dst
}

// computeQueryHash derives the cache key for a request. The request must
// already be normalized.
func computeQueryHash(req types.SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Source))
	data.WriteString("|")
	data.WriteString(req.DateFrom)
	data.WriteString("|")
	data.WriteString(req.DateTo)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))

	return sha256.Sum256([]byte(data.String()))
}
