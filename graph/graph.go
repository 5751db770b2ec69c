// Package graph is the narrow query contract the knowledge-graph recommendation agent
// depends on. Any backend that answers a query with rows of named values can serve
// it; CatalogClient answers from a YAML wine catalog.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrConnection marks failures to reach the backend, as opposed to a query it
// rejected or failed to run.
var ErrConnection = errors.New("graph: connection failed")

// Client runs a query and returns its rows.
type Client interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Query runs query and decodes every row into T.
func Query[T any](ctx context.Context, client Client, query string, params map[string]any) ([]T, error) {
	rows, err := client.ExecuteQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("graph: encode row %d: %w", i, err)
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("graph: decode row %d: %w", i, err)
		}
		out = append(out, item)
	}
	return out, nil
}
