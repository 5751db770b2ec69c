package agents

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

const maxMessageLength = 2000

var (
	wineTypes = map[string]string{
		"red":       "red",
		"white":     "white",
		"rosé":      "rosé",
		"rose":      "rosé",
		"sparkling": "sparkling",
		"champagne": "sparkling",
		"bubbly":    "sparkling",
		"dessert":   "dessert",
	}
	bodies     = []string{"light", "medium", "full"}
	sweetness  = []string{"off-dry", "dry", "sweet"}
	regions    = newVocabulary("Rioja", "Piedmont", "Mendoza", "Willamette Valley", "Tuscany", "Loire", "Mosel", "Burgundy", "Provence", "Champagne", "Bordeaux", "California")
	grapes     = newVocabulary("Tempranillo", "Nebbiolo", "Malbec", "Pinot Noir", "Sangiovese", "Sauvignon Blanc", "Riesling", "Chardonnay", "Grenache", "Sémillon", "Zinfandel", "Cabernet Sauvignon", "Merlot", "Syrah")
	foods      = newVocabulary("steak", "beef", "lamb", "pork", "chicken", "duck", "salmon", "tuna", "oysters", "shellfish", "lobster", "sushi", "pasta", "pizza", "tomato", "mushroom", "cheese", "goat cheese", "blue cheese", "salad", "barbecue", "burger", "curry", "spicy food", "chocolate", "fruit tart")
	wordSplit  = regexp.MustCompile(`[^\p{L}\p{N}\-]+`)
	underPrice = regexp.MustCompile(`(?i)(?:under|below|less than|up to|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	overPrice  = regexp.MustCompile(`(?i)(?:over|above|more than|at least|min(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	rangePrice = regexp.MustCompile(`(?i)between\s*\$?\s*(\d+(?:\.\d+)?)\s*(?:and|-|to)\s*\$?\s*(\d+(?:\.\d+)?)`)
)

// InputValidation extracts preferences and ingredients from a free-text request.
type InputValidation struct {
	*Base
}

func NewInputValidation(logger *slog.Logger) *InputValidation {
	a := &InputValidation{Base: newBase(sommelier.AgentInputValidation, "Input Validation", logger)}
	a.handle(sommelier.TypeValidateInput, a.validate)
	return a
}

func (a *InputValidation) validate(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	request, agentErr := decode[sommelier.Request](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	text := strings.TrimSpace(request.Message)
	if text == "" {
		return a.fail(msg, messaging.CodeInvalidPayload, "request message is empty")
	}
	if len(text) > maxMessageLength {
		return a.fail(msg, messaging.CodeInvalidPayload, "request message exceeds %d characters", maxMessageLength)
	}

	result := Extract(text)

	a.logger.DebugContext(
		ctx,
		"input validated",
		slog.String("correlation_id", msg.CorrelationID),
		slog.Int("ingredients", len(result.Ingredients)),
		slog.Bool("preferences", !result.Preferences.IsEmpty()),
	)

	return a.reply(msg, sommelier.TypeValidationResult, result)
}

// Extract reads wine preferences and food ingredients out of text. The result is
// valid when anything usable was recognised.
func Extract(text string) sommelier.ValidationResult {
	lower := strings.ToLower(text)
	words := wordSplit.Split(lower, -1)

	prefs := &sommelier.Preferences{}

	for _, word := range words {
		if wineType, ok := wineTypes[word]; ok && prefs.WineType == "" {
			prefs.WineType = wineType
		}
	}
	for _, body := range bodies {
		if slices.Contains(words, body) || strings.Contains(lower, body+"-bodied") {
			prefs.Body = body
			break
		}
	}
	for _, s := range sweetness {
		if slices.Contains(words, s) {
			prefs.Sweetness = s
			break
		}
	}

	prefs.Regions = regions.find(lower)
	prefs.Grapes = grapes.find(lower)
	prefs.PriceRange = priceRange(text)

	result := sommelier.ValidationResult{
		Ingredients: foods.find(lower),
	}
	if !prefs.IsEmpty() {
		result.Preferences = prefs
	}

	result.Valid = result.Preferences != nil || len(result.Ingredients) > 0
	if !result.Valid {
		result.Issues = append(result.Issues, "no wine preferences or ingredients recognised")
	}
	return result
}

type term struct {
	phrase  string
	pattern *regexp.Regexp
}

// vocabulary matches known phrases as whole words, case-insensitively.
type vocabulary []term

func newVocabulary(phrases ...string) vocabulary {
	v := make(vocabulary, 0, len(phrases))
	for _, phrase := range phrases {
		v = append(v, term{
			phrase:  phrase,
			pattern: regexp.MustCompile(`(?i)(^|[^\p{L}])` + regexp.QuoteMeta(phrase) + `($|[^\p{L}])`),
		})
	}
	return v
}

func (v vocabulary) find(text string) []string {
	var found []string
	for _, t := range v {
		if t.pattern.MatchString(text) {
			found = append(found, t.phrase)
		}
	}
	return found
}

func priceRange(text string) *sommelier.PriceRange {
	if m := rangePrice.FindStringSubmatch(text); m != nil {
		return &sommelier.PriceRange{Min: parsePrice(m[1]), Max: parsePrice(m[2])}
	}

	r := &sommelier.PriceRange{}
	if m := underPrice.FindStringSubmatch(text); m != nil {
		r.Max = parsePrice(m[1])
	}
	if m := overPrice.FindStringSubmatch(text); m != nil {
		r.Min = parsePrice(m[1])
	}
	if r.IsZero() {
		return nil
	}
	return r
}

func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
