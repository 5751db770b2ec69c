package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/sommelier/server"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

var (
	recMessage     string
	recUser        string
	recWineType    string
	recBody        string
	recSweetness   string
	recMinPrice    float64
	recMaxPrice    float64
	recRegions     []string
	recGrapes      []string
	recIngredients []string
	recSource      string
	recServer      string
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Ask for a wine recommendation",
	Long: `Run one recommendation request and print the result as JSON.

Without --server the pipeline runs in this process. With --server the request
is sent to a running "sommelier serve".`,
	Example: `  sommelier recommend --message "a bold red to go with lamb under $40"
  sommelier recommend --wine-type white --ingredient oysters --server http://localhost:8080`,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	f := recommendCmd.Flags()
	f.StringVarP(&recMessage, "message", "m", "", "free-text request")
	f.StringVarP(&recUser, "user", "u", "", "user id, enables stored preferences")
	f.StringVar(&recWineType, "wine-type", "", "red, white, rosé, sparkling, or dessert")
	f.StringVar(&recBody, "body", "", "light, medium, or full")
	f.StringVar(&recSweetness, "sweetness", "", "dry, off-dry, or sweet")
	f.Float64Var(&recMinPrice, "min-price", 0, "lowest acceptable price")
	f.Float64Var(&recMaxPrice, "max-price", 0, "highest acceptable price")
	f.StringSliceVar(&recRegions, "region", nil, "preferred regions (repeatable)")
	f.StringSliceVar(&recGrapes, "grape", nil, "preferred grapes (repeatable)")
	f.StringSliceVarP(&recIngredients, "ingredient", "i", nil, "dish ingredients (repeatable)")
	f.StringVar(&recSource, "source", "", "knowledge_graph or llm (overrides config)")
	f.StringVar(&recServer, "server", "", "base URL of a running server")
}

func buildRequest() sommelier.Request {
	prefs := &sommelier.Preferences{
		WineType:  recWineType,
		Body:      recBody,
		Sweetness: recSweetness,
		Regions:   recRegions,
		Grapes:    recGrapes,
	}
	if recMinPrice > 0 || recMaxPrice > 0 {
		prefs.PriceRange = &sommelier.PriceRange{Min: recMinPrice, Max: recMaxPrice}
	}
	if prefs.IsEmpty() {
		prefs = nil
	}

	return sommelier.Request{
		UserID:               recUser,
		Message:              recMessage,
		Preferences:          prefs,
		Ingredients:          recIngredients,
		RecommendationSource: recSource,
	}
}

func runRecommend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	request := buildRequest()

	var result any
	if recServer != "" {
		resp, err := server.NewClient(nil, recServer).Recommend(ctx, request)
		if err != nil {
			return err
		}
		result = resp
	} else {
		k, err := newKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		rec, err := k.Recommend(ctx, request)
		if err != nil {
			return err
		}
		result = rec
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
