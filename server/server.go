// Package server exposes the recommendation pipeline over HTTP.
//
// Recommend and ListDeadLetters are Connect unary procedures carrying
// google.protobuf.Struct, so any Connect, gRPC, or gRPC-Web client can call them
// without generated stubs. The router also serves /healthz and /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/sommelier/orchestrate/config"
	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/orchestrate/messaging"
	"github.com/tailored-agentic-units/sommelier/sommelier"
)

// Procedures served by the router.
const (
	ServiceName                = "sommelier.v1.SommelierService"
	RecommendProcedure         = "/" + ServiceName + "/Recommend"
	ListDeadLettersProcedure   = "/" + ServiceName + "/ListDeadLetters"
	requestSource              = "api"
	defaultAddr                = ":8080"
	defaultRequestTimeout      = 30 * time.Second
	defaultShutdownGracePeriod = 10 * time.Second
)

type Config struct {
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`

	// RequestTimeout bounds a whole Recommend call, every pipeline stage included.
	RequestTimeout config.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`

	ShutdownTimeout config.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            defaultAddr,
		RequestTimeout:  config.Duration(defaultRequestTimeout),
		ShutdownTimeout: config.Duration(defaultShutdownGracePeriod),
	}
}

func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}

// Requester is the part of the bus the server sends user requests through.
type Requester interface {
	SendMessageAndWaitForResponse(
		ctx context.Context,
		targetAgentID string,
		message *messaging.Message,
		timeout time.Duration,
	) messaging.Result[*messaging.Message]
}

type Server struct {
	cfg      Config
	bus      Requester
	queue    deadletter.Queue
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer sets the registry /metrics serves. Without it /metrics serves the
// Prometheus default registry.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

func New(serverConfig Config, bus Requester, queue deadletter.Queue, opts ...Option) *Server {
	cfg := DefaultConfig()
	cfg.Merge(&serverConfig)

	s := &Server{
		cfg:      cfg,
		bus:      bus,
		queue:    queue,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Handle(RecommendProcedure, connect.NewUnaryHandler(RecommendProcedure, s.recommend))
	r.Handle(ListDeadLettersProcedure, connect.NewUnaryHandler(ListDeadLettersProcedure, s.listDeadLetters))

	return r
}

// ListenAndServe serves until ctx ends, then shuts down within the configured
// grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout.Std())
	defer cancel()

	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) recommend(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	var request sommelier.Request
	if err := fromStruct(req.Msg, &request); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	envelope := messaging.New(
		sommelier.TypeUserRequest,
		request,
		requestSource,
		request.ConversationID,
		messaging.NewCorrelationID(),
		sommelier.AgentCoordinator,
	).UserID(request.UserID).Build()

	response, err := s.bus.SendMessageAndWaitForResponse(ctx, sommelier.AgentCoordinator, envelope, s.cfg.RequestTimeout.Std()).Unpack()
	if err != nil {
		return nil, toConnectError(err)
	}
	if response == nil {
		return nil, connect.NewError(connect.CodeInternal, errors.New("coordinator returned no response"))
	}

	rec, err := messaging.DecodePayload[sommelier.Recommendation](response)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	out, err := toStruct(map[string]any{
		"correlationId":  envelope.CorrelationID,
		"recommendation": rec,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *Server) listDeadLetters(ctx context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	records, err := s.queue.All(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	out, err := toStruct(map[string]any{"records": records})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(
			r.Context(),
			"http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

// toConnectError maps bus failures to Connect codes. Recoverable failures are
// reported as unavailable so clients may retry.
func toConnectError(err error) error {
	var agentErr *messaging.AgentError
	if !errors.As(err, &agentErr) {
		return connect.NewError(connect.CodeInternal, err)
	}

	switch {
	case agentErr.Code == messaging.CodeInvalidPayload || agentErr.Code == messaging.CodeMissingPayload:
		return connect.NewError(connect.CodeInvalidArgument, agentErr)
	case agentErr.Code == messaging.CodeTimeout:
		return connect.NewError(connect.CodeDeadlineExceeded, agentErr)
	case agentErr.Code == messaging.CodeRequestCancelled:
		return connect.NewError(connect.CodeCanceled, agentErr)
	case agentErr.Recoverable:
		return connect.NewError(connect.CodeUnavailable, agentErr)
	default:
		return connect.NewError(connect.CodeInternal, agentErr)
	}
}

func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return structpb.NewStruct(m)
}
