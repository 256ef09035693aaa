package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "postfeed"

// GenerationKey holds the counter bumped on every post write.
const GenerationKey = KeyPrefix + ":home:generation"

// CacheKey identifies one cached page.
type CacheKey struct {
	// Endpoint is the request path (e.g., "/home")
	Endpoint string

	// Generation is the invalidation counter the page was read under
	Generation int64

	// QueryParams are the normalized query parameters
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: postfeed:endpoint:g=N:query1=val1:query2=val2
//
// Example:
//
//	postfeed:home:g=3:limit=10:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	parts = append(parts, fmt.Sprintf("g=%d", k.Generation))

	// Sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
