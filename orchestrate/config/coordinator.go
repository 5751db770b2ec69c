package config

import "time"

// Recommendation sources.
const (
	SourceKnowledgeGraph = "knowledge_graph"
	SourceLLM            = "llm"
)

// DefaultFallbackMessage is returned when neither a recommendation nor an LLM
// fallback can be produced.
const DefaultFallbackMessage = "We could not put together a recommendation right now. " +
	"A versatile choice is a medium-bodied red such as a Pinot Noir, or a crisp Sauvignon Blanc for white."

// CoordinatorConfig configures the recommendation pipeline.
type CoordinatorConfig struct {
	// RecommendationSource selects the recommendation agent when a request does not.
	RecommendationSource string `json:"recommendation_source" yaml:"recommendation_source" env:"RECOMMENDATION_SOURCE"`

	// StageTimeout bounds each agent call made by the pipeline.
	StageTimeout Duration `json:"stage_timeout" yaml:"stage_timeout" env:"STAGE_TIMEOUT"`

	// FallbackMessage is the static degraded response.
	FallbackMessage string `json:"fallback_message,omitempty" yaml:"fallback_message,omitempty" env:"FALLBACK_MESSAGE"`

	// CaptureIntermediateStates records the pipeline state after every stage.
	CaptureIntermediateStates bool `json:"capture_intermediate_states,omitempty" yaml:"capture_intermediate_states,omitempty" env:"CAPTURE_INTERMEDIATE_STATES"`
}

func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RecommendationSource: SourceKnowledgeGraph,
		StageTimeout:         Duration(10 * time.Second),
		FallbackMessage:      DefaultFallbackMessage,
	}
}

func (c *CoordinatorConfig) Merge(source *CoordinatorConfig) {
	if source.RecommendationSource != "" {
		c.RecommendationSource = source.RecommendationSource
	}

	if source.StageTimeout > 0 {
		c.StageTimeout = source.StageTimeout
	}

	if source.FallbackMessage != "" {
		c.FallbackMessage = source.FallbackMessage
	}

	if source.CaptureIntermediateStates {
		c.CaptureIntermediateStates = true
	}
}

// ChainConfig returns the chain settings the pipeline runs with.
func (c *CoordinatorConfig) ChainConfig() ChainConfig {
	return ChainConfig{CaptureIntermediateStates: c.CaptureIntermediateStates}
}
