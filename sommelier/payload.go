package sommelier

import "strings"

// Request is the USER_REQUEST payload.
type Request struct {
	UserID               string       `json:"userId,omitempty"`
	ConversationID       string       `json:"conversationId,omitempty"`
	Message              string       `json:"message,omitempty"`
	Preferences          *Preferences `json:"preferences,omitempty"`
	Ingredients          []string     `json:"ingredients,omitempty"`
	RecommendationSource string       `json:"recommendationSource,omitempty"`
}

// HasInput reports whether the request carries anything a recommendation can be
// built from.
func (r Request) HasInput() bool {
	return strings.TrimSpace(r.Message) != "" || !r.Preferences.IsEmpty() || len(r.Ingredients) > 0
}

type PriceRange struct {
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

func (p *PriceRange) IsZero() bool {
	return p == nil || (p.Min == 0 && p.Max == 0)
}

// Contains reports whether price falls inside the range. Zero bounds are open.
func (p *PriceRange) Contains(price float64) bool {
	if p.IsZero() {
		return true
	}
	if p.Min > 0 && price < p.Min {
		return false
	}
	if p.Max > 0 && price > p.Max {
		return false
	}
	return true
}

type Preferences struct {
	WineType   string      `json:"wineType,omitempty"`
	PriceRange *PriceRange `json:"priceRange,omitempty"`
	Body       string      `json:"body,omitempty"`
	Sweetness  string      `json:"sweetness,omitempty"`
	Regions    []string    `json:"regions,omitempty"`
	Grapes     []string    `json:"grapes,omitempty"`
}

func (p *Preferences) IsEmpty() bool {
	return p == nil ||
		(p.WineType == "" && p.PriceRange.IsZero() && p.Body == "" && p.Sweetness == "" &&
			len(p.Regions) == 0 && len(p.Grapes) == 0)
}

// Merge returns a copy of p with the non-zero fields of update applied.
func (p *Preferences) Merge(update *Preferences) *Preferences {
	merged := &Preferences{}
	if p != nil {
		*merged = *p
	}
	if update == nil {
		return merged
	}

	if update.WineType != "" {
		merged.WineType = update.WineType
	}
	if !update.PriceRange.IsZero() {
		pr := *update.PriceRange
		merged.PriceRange = &pr
	}
	if update.Body != "" {
		merged.Body = update.Body
	}
	if update.Sweetness != "" {
		merged.Sweetness = update.Sweetness
	}
	if len(update.Regions) > 0 {
		merged.Regions = append([]string(nil), update.Regions...)
	}
	if len(update.Grapes) > 0 {
		merged.Grapes = append([]string(nil), update.Grapes...)
	}
	return merged
}

// ValidationResult is what the input validation agent extracts from free text.
type ValidationResult struct {
	Valid       bool         `json:"valid"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Ingredients []string     `json:"ingredients,omitempty"`
	Issues      []string     `json:"issues,omitempty"`
}

// ValueAnalysis classifies the budget a request implies.
type ValueAnalysis struct {
	Band     string     `json:"band"`
	Range    PriceRange `json:"range"`
	Guidance string     `json:"guidance"`
}

// Price bands.
const (
	BandAny     = "any"
	BandBudget  = "budget"
	BandMid     = "mid"
	BandPremium = "premium"
	BandLuxury  = "luxury"
)

type Wine struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Region      string   `json:"region,omitempty" yaml:"region"`
	Grape       string   `json:"grape,omitempty" yaml:"grape"`
	Vintage     int      `json:"vintage,omitempty" yaml:"vintage"`
	Price       float64  `json:"price,omitempty" yaml:"price"`
	Rating      float64  `json:"rating,omitempty" yaml:"rating"`
	Body        string   `json:"body,omitempty" yaml:"body"`
	Sweetness   string   `json:"sweetness,omitempty" yaml:"sweetness"`
	Pairings    []string `json:"pairings,omitempty" yaml:"pairings"`
	Description string   `json:"description,omitempty" yaml:"description"`
}

// RecommendationQuery is the RECOMMENDATION_REQUEST payload.
type RecommendationQuery struct {
	UserID      string         `json:"userId,omitempty"`
	Message     string         `json:"message,omitempty"`
	Preferences *Preferences   `json:"preferences,omitempty"`
	Ingredients []string       `json:"ingredients,omitempty"`
	Value       *ValueAnalysis `json:"value,omitempty"`
	Enrichment  map[string]any `json:"enrichment,omitempty"`
	Limit       int            `json:"limit,omitempty"`
}

// Recommendation is returned to the caller. Error carries an in-band failure
// reported by a recommendation agent instead of an ERROR envelope.
type Recommendation struct {
	Wines       []Wine `json:"wines"`
	Reasoning   string `json:"reasoning,omitempty"`
	Source      string `json:"source,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Error       string `json:"error,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ExplanationRequest is the GENERATE_EXPLANATION payload.
type ExplanationRequest struct {
	Request        RecommendationQuery `json:"request"`
	Recommendation Recommendation      `json:"recommendation"`
}

type Explanation struct {
	Text string `json:"text"`
}

// FallbackRequest is the FALLBACK_REQUEST payload.
type FallbackRequest struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason"`
}

// MCPResult is what the MCP adapter adds to a request.
type MCPResult struct {
	Context map[string]any `json:"context,omitempty"`
}
