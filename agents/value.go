package agents

import (
	"context"
	"log/slog"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// Upper price bounds of each band.
const (
	budgetCeiling  = 15.0
	midCeiling     = 40.0
	premiumCeiling = 100.0
)

// ValueAnalysis classifies the budget implied by a request's price range.
type ValueAnalysis struct {
	*Base
}

func NewValueAnalysis(logger *slog.Logger) *ValueAnalysis {
	a := &ValueAnalysis{Base: newBase(sommelier.AgentValueAnalysis, "Value Analysis", logger)}
	a.handle(sommelier.TypeAnalyzeValue, a.analyze)
	return a
}

func (a *ValueAnalysis) analyze(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	query, agentErr := decode[sommelier.RecommendationQuery](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	var price *sommelier.PriceRange
	if query.Preferences != nil {
		price = query.Preferences.PriceRange
	}
	if price != nil && price.Min > 0 && price.Max > 0 && price.Min > price.Max {
		return a.fail(msg, messaging.CodeInvalidPayload, "price range minimum %.2f exceeds maximum %.2f", price.Min, price.Max)
	}

	return a.reply(msg, sommelier.TypeValueAnalysis, Analyze(price))
}

// Analyze maps a price range to a band. The band follows the upper bound, or the
// lower bound when only that is set.
func Analyze(price *sommelier.PriceRange) sommelier.ValueAnalysis {
	if price.IsZero() {
		return sommelier.ValueAnalysis{
			Band:     sommelier.BandAny,
			Guidance: "No budget given; favour the best rated wines at any price.",
		}
	}

	reference := price.Max
	if reference == 0 {
		reference = price.Min
	}

	analysis := sommelier.ValueAnalysis{Range: *price}
	switch {
	case reference <= budgetCeiling:
		analysis.Band = sommelier.BandBudget
		analysis.Guidance = "Look for value regions and young vintages."
	case reference <= midCeiling:
		analysis.Band = sommelier.BandMid
		analysis.Guidance = "Well made wines from established producers fit this budget."
	case reference <= premiumCeiling:
		analysis.Band = sommelier.BandPremium
		analysis.Guidance = "Classic appellations and older vintages come into reach."
	default:
		analysis.Band = sommelier.BandLuxury
		analysis.Guidance = "Top producers and collectible bottles are in range."
	}
	return analysis
}
