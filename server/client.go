package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// Client calls a running server.
type Client struct {
	recommend       *connect.Client[structpb.Struct, structpb.Struct]
	listDeadLetters *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient targets baseURL, for example "http://localhost:8080". A nil httpClient
// uses http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		recommend:       connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RecommendProcedure, connect.WithProtoJSON()),
		listDeadLetters: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ListDeadLettersProcedure, connect.WithProtoJSON()),
	}
}

type RecommendResponse struct {
	CorrelationID  string                   `json:"correlationId"`
	Recommendation sommelier.Recommendation `json:"recommendation"`
}

func (c *Client) Recommend(ctx context.Context, request sommelier.Request) (*RecommendResponse, error) {
	msg, err := toStruct(request)
	if err != nil {
		return nil, err
	}

	resp, err := c.recommend.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}

	var out RecommendResponse
	if err := fromStruct(resp.Msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListDeadLetters(ctx context.Context) ([]deadletter.Record, error) {
	resp, err := c.listDeadLetters.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, err
	}

	var out struct {
		Records []deadletter.Record `json:"records"`
	}
	if err := fromStruct(resp.Msg, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}
