package agents

import (
	"context"
	"log/slog"

	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// UserPreference keeps each user's accumulated preferences in its context memory
// and shares them with the recommendation agents.
type UserPreference struct {
	*Base
	shareWith []string
}

func NewUserPreference(logger *slog.Logger) *UserPreference {
	a := &UserPreference{
		Base:      newBase(sommelier.AgentUserPreference, "User Preference", logger),
		shareWith: []string{sommelier.AgentRecommendation, sommelier.AgentLLMRecommendation},
	}
	a.handle(sommelier.TypeUpdatePreferences, a.update)
	return a
}

// PreferencesKey is the context memory key holding userID's preferences.
func PreferencesKey(userID string) string {
	return sommelier.ContextKeyPreferences + "/" + userID
}

func (a *UserPreference) update(ctx context.Context, msg *messaging.Message) messaging.Result[*messaging.Message] {
	query, agentErr := decode[sommelier.RecommendationQuery](a.Base, msg)
	if agentErr != nil {
		return messaging.Fail[*messaging.Message](agentErr)
	}

	userID := query.UserID
	if userID == "" {
		userID = msg.UserID
	}
	if userID == "" {
		return a.reply(msg, sommelier.TypePreferencesUpdated, query.Preferences.Merge(nil))
	}

	key := PreferencesKey(userID)

	var stored *sommelier.Preferences
	if entry, ok := a.bus.GetContext(a.id, key); ok {
		stored, _ = entry.Value.(*sommelier.Preferences)
	}

	merged := stored.Merge(query.Preferences)
	a.bus.SetContext(a.id, key, merged, map[string]any{
		"userId":        userID,
		"correlationId": msg.CorrelationID,
	})
	for _, agentID := range a.shareWith {
		a.bus.ShareContext(a.id, agentID, key)
	}

	a.logger.DebugContext(
		ctx,
		"preferences updated",
		slog.String("correlation_id", msg.CorrelationID),
		slog.String("user_id", userID),
	)

	return a.reply(msg, sommelier.TypePreferencesUpdated, merged)
}
