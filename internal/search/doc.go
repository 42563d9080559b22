// Package search serves ranked full-text queries from a store through
// an LRU response cache.
//
// The cache is keyed by a hash of the whole request, so the same query
// with different source or date filters occupies separate entries.
// Entries expire after a TTL and are evicted the next time they are
// looked up. Served hits report CacheHit true:
//
//	s := search.New(store, search.Config{})
//
//	resp, err := s.Search(ctx, types.SearchRequest{
//	    Query:  "quarterly planning",
//	    Source: types.SourceSlack,
//	    Limit:  20,
//	})
//
// Cached responses are deep copies in both directions, so callers may
// modify what they receive without corrupting later hits.
//
// With Config.DisableCache set every query goes to the store and
// nothing is cached. Indexing runs call InvalidateCache so results
// never lag the store.
package search
