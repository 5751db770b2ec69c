package sommelier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tailored-agentic-units/sommelier/sommelier"
)

func TestRequest_HasInput(t *testing.T) {
	tests := []struct {
		name    string
		request sommelier.Request
		want    bool
	}{
		{"empty", sommelier.Request{}, false},
		{"whitespace message", sommelier.Request{Message: "   "}, false},
		{"empty preferences", sommelier.Request{Preferences: &sommelier.Preferences{}}, false},
		{"message", sommelier.Request{Message: "a red for steak"}, true},
		{"preferences", sommelier.Request{Preferences: &sommelier.Preferences{WineType: "red"}}, true},
		{"ingredients", sommelier.Request{Ingredients: []string{"salmon"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.request.HasInput())
		})
	}
}

func TestPreferences_Merge(t *testing.T) {
	base := &sommelier.Preferences{
		WineType: "red",
		Body:     "full",
		Regions:  []string{"Rioja"},
	}
	update := &sommelier.Preferences{
		Body:       "medium",
		PriceRange: &sommelier.PriceRange{Max: 30},
	}

	merged := base.Merge(update)

	assert.Equal(t, "red", merged.WineType)
	assert.Equal(t, "medium", merged.Body)
	assert.Equal(t, []string{"Rioja"}, merged.Regions)
	assert.Equal(t, 30.0, merged.PriceRange.Max)
	assert.Equal(t, "full", base.Body, "receiver is not modified")

	update.PriceRange.Max = 99
	assert.Equal(t, 30.0, merged.PriceRange.Max, "price range is copied")
}

func TestPreferences_MergeNil(t *testing.T) {
	var prefs *sommelier.Preferences

	merged := prefs.Merge(&sommelier.Preferences{WineType: "white"})
	assert.Equal(t, "white", merged.WineType)

	assert.True(t, prefs.IsEmpty())
	assert.True(t, prefs.Merge(nil).IsEmpty())
}

func TestPriceRange_Contains(t *testing.T) {
	var open *sommelier.PriceRange
	assert.True(t, open.Contains(500))

	r := &sommelier.PriceRange{Min: 10, Max: 40}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(40))
	assert.False(t, r.Contains(9.99))
	assert.False(t, r.Contains(40.01))

	floor := &sommelier.PriceRange{Min: 50}
	assert.True(t, floor.Contains(1000))
	assert.False(t, floor.Contains(20))
}
