// Package sommelier defines the vocabulary shared by the recommendation agents and
// the coordinator: agent ids, message types, stage tags and payloads.
package sommelier

// Agent ids registered on the bus.
const (
	AgentCoordinator       = "coordinator"
	AgentInputValidation   = "input-validation"
	AgentValueAnalysis     = "value-analysis"
	AgentUserPreference    = "user-preference"
	AgentMCPAdapter        = "mcp-adapter"
	AgentRecommendation    = "recommendation"
	AgentLLMRecommendation = "llm-recommendation"
	AgentExplanation       = "explanation"
	AgentFallback          = "fallback"
)

// Message types.
const (
	TypeUserRequest            = "USER_REQUEST"
	TypeRecommendationResponse = "RECOMMENDATION_RESPONSE"
	TypeValidateInput          = "VALIDATE_INPUT"
	TypeValidationResult       = "VALIDATION_RESULT"
	TypeAnalyzeValue           = "ANALYZE_VALUE"
	TypeValueAnalysis          = "VALUE_ANALYSIS_RESULT"
	TypeUpdatePreferences      = "UPDATE_PREFERENCES"
	TypePreferencesUpdated     = "PREFERENCES_UPDATED"
	TypeMCPRequest             = "MCP_REQUEST"
	TypeMCPResult              = "MCP_RESULT"
	TypeRecommendationRequest  = "RECOMMENDATION_REQUEST"
	TypeRecommendationResult   = "RECOMMENDATION_RESULT"
	TypeGenerateExplanation    = "GENERATE_EXPLANATION"
	TypeExplanationResult      = "EXPLANATION_RESULT"
	TypeFallbackRequest        = "FALLBACK_REQUEST"
	TypeFallbackResult         = "FALLBACK_RESULT"
)

// Stage tags written to dead-letter metadata.
const (
	StageInputValidation          = "InputValidationAgent"
	StageValueAnalysis            = "ValueAnalysisAgent"
	StageUserPreference           = "UserPreferenceAgent"
	StageMCPAdapter               = "MCPAdapterAgent"
	StageRecommendation           = "RecommendationAgent"
	StageExplanation              = "ExplanationAgent"
	StageFallback                 = "FallbackAgent"
	StageRequestTypeDetermination = "RequestTypeDetermination"
)

// ContextKeyPreferences is the context memory key holding a user's merged preferences.
const ContextKeyPreferences = "preferences"
