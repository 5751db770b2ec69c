package graph

import (
	"cmp"
	"context"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// QueryWinesByPreferences selects wines matching a preference profile. Parameters:
// type, body, sweetness (strings), minPrice, maxPrice (float64), regions, grapes,
// ingredients ([]string) and limit (int). Empty parameters do not filter.
const QueryWinesByPreferences = `MATCH (w:Wine)
WHERE ($type = '' OR w.type = $type)
  AND ($minPrice = 0 OR w.price >= $minPrice)
  AND ($maxPrice = 0 OR w.price <= $maxPrice)
  AND (size($regions) = 0 OR w.region IN $regions)
  AND (size($grapes) = 0 OR w.grape IN $grapes)
OPTIONAL MATCH (w)-[:PAIRS_WITH]->(f:Food) WHERE f.name IN $ingredients
WITH w, count(f) AS pairings
RETURN w ORDER BY pairings DESC, w.rating DESC LIMIT $limit`

const defaultLimit = 5

//go:embed catalog.yaml
var defaultCatalog []byte

// Config locates the wine catalog. An empty CatalogPath uses the built-in catalog.
type Config struct {
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty" env:"CATALOG_PATH"`
}

func DefaultConfig() Config {
	return Config{}
}

func (c *Config) Merge(source *Config) {
	if source.CatalogPath != "" {
		c.CatalogPath = source.CatalogPath
	}
}

// New creates a CatalogClient from configuration.
func New(cfg *Config) (*CatalogClient, error) {
	if cfg.CatalogPath == "" {
		return ParseCatalog(defaultCatalog)
	}
	return LoadCatalog(cfg.CatalogPath)
}

type catalogFile struct {
	Wines []sommelier.Wine `yaml:"wines"`
}

// CatalogClient answers QueryWinesByPreferences from an in-memory wine list.
type CatalogClient struct {
	wines []sommelier.Wine
}

func LoadCatalog(path string) (*CatalogClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog: %v", ErrConnection, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*CatalogClient, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("graph: parse catalog: %w", err)
	}
	return &CatalogClient{wines: file.Wines}, nil
}

func (c *CatalogClient) Len() int {
	return len(c.wines)
}

func (c *CatalogClient) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if query != QueryWinesByPreferences {
		return nil, fmt.Errorf("graph: unsupported query")
	}

	filter, err := parseFilter(params)
	if err != nil {
		return nil, err
	}

	type scored struct {
		wine  sommelier.Wine
		score int
	}

	var matches []scored
	for _, wine := range c.wines {
		if !filter.accepts(wine) {
			continue
		}
		matches = append(matches, scored{wine: wine, score: filter.pairings(wine)})
	}

	slices.SortStableFunc(matches, func(a, b scored) int {
		if n := cmp.Compare(b.score, a.score); n != 0 {
			return n
		}
		return cmp.Compare(b.wine.Rating, a.wine.Rating)
	})

	if len(matches) > filter.limit {
		matches = matches[:filter.limit]
	}

	rows := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, wineRow(m.wine))
	}
	return rows, nil
}

type wineFilter struct {
	wineType    string
	body        string
	sweetness   string
	price       sommelier.PriceRange
	regions     []string
	grapes      []string
	ingredients []string
	limit       int
}

func parseFilter(params map[string]any) (wineFilter, error) {
	f := wineFilter{limit: defaultLimit}

	var err error
	if f.wineType, err = stringParam(params, "type"); err != nil {
		return f, err
	}
	if f.body, err = stringParam(params, "body"); err != nil {
		return f, err
	}
	if f.sweetness, err = stringParam(params, "sweetness"); err != nil {
		return f, err
	}
	if f.price.Min, err = floatParam(params, "minPrice"); err != nil {
		return f, err
	}
	if f.price.Max, err = floatParam(params, "maxPrice"); err != nil {
		return f, err
	}
	if f.regions, err = listParam(params, "regions"); err != nil {
		return f, err
	}
	if f.grapes, err = listParam(params, "grapes"); err != nil {
		return f, err
	}
	if f.ingredients, err = listParam(params, "ingredients"); err != nil {
		return f, err
	}

	if limit, ok := params["limit"].(int); ok && limit > 0 {
		f.limit = limit
	}
	return f, nil
}

func (f wineFilter) accepts(w sommelier.Wine) bool {
	if f.wineType != "" && !strings.EqualFold(w.Type, f.wineType) {
		return false
	}
	if f.body != "" && !strings.EqualFold(w.Body, f.body) {
		return false
	}
	if f.sweetness != "" && !strings.EqualFold(w.Sweetness, f.sweetness) {
		return false
	}
	if !f.price.Contains(w.Price) {
		return false
	}
	if len(f.regions) > 0 && !containsFold(f.regions, w.Region) {
		return false
	}
	if len(f.grapes) > 0 && !containsFold(f.grapes, w.Grape) {
		return false
	}
	return true
}

func (f wineFilter) pairings(w sommelier.Wine) int {
	n := 0
	for _, ingredient := range f.ingredients {
		if containsFold(w.Pairings, ingredient) {
			n++
		}
	}
	return n
}

func containsFold(list []string, value string) bool {
	return slices.ContainsFunc(list, func(s string) bool {
		return strings.EqualFold(s, value)
	})
}

func wineRow(w sommelier.Wine) map[string]any {
	return map[string]any{
		"id":          w.ID,
		"name":        w.Name,
		"type":        w.Type,
		"region":      w.Region,
		"grape":       w.Grape,
		"vintage":     w.Vintage,
		"price":       w.Price,
		"rating":      w.Rating,
		"body":        w.Body,
		"sweetness":   w.Sweetness,
		"pairings":    w.Pairings,
		"description": w.Description,
	}
}

func stringParam(params map[string]any, name string) (string, error) {
	switch v := params[name].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("graph: parameter %s: expected string, got %T", name, v)
	}
}

func floatParam(params map[string]any, name string) (float64, error) {
	switch v := params[name].(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("graph: parameter %s: expected number, got %T", name, v)
	}
}

func listParam(params map[string]any, name string) ([]string, error) {
	switch v := params[name].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("graph: parameter %s: expected list, got %T", name, v)
	}
}
