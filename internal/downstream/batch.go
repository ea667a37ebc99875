package downstream

import (
	"context"
	"net/url"
	"strings"

	"github.com/edgefront/bffgw/internal/cache"
)

// NewBatchFetcher builds a batch fetch function over a list-of-ids
// endpoint. The endpoint takes the ids as one comma-separated query
// parameter and returns a JSON array of entities; idField names the entity
// field carrying the id. Entities the downstream does not return are
// simply absent, matching the no-coverage-guarantee contract.
func NewBatchFetcher(c Caller, reqPath, queryParam, idField string) cache.FetchFunc[map[string]any] {
	return func(ctx context.Context, ids []string) (map[string]map[string]any, error) {
		var items []map[string]any

		req := &Request{
			Path:  reqPath,
			Query: url.Values{queryParam: []string{strings.Join(ids, ",")}},
		}
		if err := c.Do(ctx, req, &items); err != nil {
			return nil, err
		}

		found := make(map[string]map[string]any, len(items))
		for _, item := range items {
			id, ok := item[idField].(string)
			if !ok || id == "" {
				continue
			}
			found[id] = item
		}

		return found, nil
	}
}
