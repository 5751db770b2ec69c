package config

// ChainConfig defines configuration for sequential chain execution.
//
// When CaptureIntermediateStates is true, ChainResult.Intermediate holds the initial
// state followed by the state after every step; otherwise only the final state is kept.
type ChainConfig struct {
	CaptureIntermediateStates bool `json:"capture_intermediate_states"`
}

func DefaultChainConfig() ChainConfig {
	return ChainConfig{}
}

func (c *ChainConfig) Merge(source *ChainConfig) {
	if source.CaptureIntermediateStates {
		c.CaptureIntermediateStates = true
	}
}
