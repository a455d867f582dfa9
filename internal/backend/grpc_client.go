package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

const (
	interviewService      = "funnel.interview.v1.InterviewService"
	respondMethod         = "/" + interviewService + "/Respond"
	completeMethod        = "/" + interviewService + "/Complete"
	jsonCodecName         = "json"
	defaultConnectTimeout = 5 * time.Second
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("reasoning service not serving")
)

// jsonCodec carries the interview messages as JSON so the reasoning service
// can share one schema across its HTTP and gRPC endpoints.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

// GrpcReasoner is a Reasoner backed by a gRPC connection to the reasoning service.
type GrpcReasoner struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   defaultConnectTimeout,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcReasoner connects to the reasoning service and fails fast when it is unreachable.
func NewGrpcReasoner(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcReasoner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("reasoning service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to reasoning service", "address", cfg.Address)

	return &GrpcReasoner{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Respond invokes InterviewService/Respond.
func (c *GrpcReasoner) Respond(ctx context.Context, req RespondRequest) (*RespondResponse, error) {
	var resp RespondResponse
	if err := c.conn.Invoke(ctx, respondMethod, &req, &resp, grpc.ForceCodec(jsonCodec{})); err != nil {
		return nil, fmt.Errorf("interview respond: %w", err)
	}
	if err := validateRespond(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete invokes InterviewService/Complete.
func (c *GrpcReasoner) Complete(ctx context.Context, req CompleteRequest) error {
	var ack struct{}
	if err := c.conn.Invoke(ctx, completeMethod, &req, &ack, grpc.ForceCodec(jsonCodec{})); err != nil {
		return fmt.Errorf("interview complete: %w", err)
	}
	return nil
}

// Health checks the standard gRPC health service for the interview service.
func (c *GrpcReasoner) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: interviewService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (c *GrpcReasoner) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

var _ Reasoner = (*GrpcReasoner)(nil)
