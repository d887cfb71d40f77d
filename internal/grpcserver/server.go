package grpcserver

import (
	"context"
	"net"
	"runtime/debug"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name reported for the API.
const ServiceName = "parcelhub.v1.ParcelHub"

// Checker probes a dependency the service cannot work without.
type Checker func(ctx context.Context) error

// Server exposes the gRPC health protocol. The serving status follows the
// checkers, probed every interval.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checkers []Checker
	interval time.Duration
	log      *zap.Logger
}

func New(log *zap.Logger, interval time.Duration, checkers ...Checker) *Server {
	log = log.Named("grpc")
	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
			log.Error("rpc panic recovered", zap.Any("panic", p), zap.ByteString("stacktrace", debug.Stack()))
			return status.Errorf(codes.Internal, "panic triggered: %v", p)
		}),
	}

	srv := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
			grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
			unaryLogger(log),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_prometheus.StreamServerInterceptor,
			grpc_recovery.StreamServerInterceptor(recoveryOpts...),
		)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	grpc_prometheus.EnableHandlingTimeHistogram()
	grpc_prometheus.Register(srv)

	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Server{grpc: srv, health: hs, checkers: checkers, interval: interval, log: log}
}

func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc handled", zap.String("fn", info.FullMethod),
			zap.String("code", status.Code(err).String()), zap.Duration("elapsed", time.Since(start)))
		return resp, err
	}
}

// Probe runs every checker once and publishes the resulting status.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	for _, check := range s.checkers {
		if err := check(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Serve blocks until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-t.C:
				probeCtx, cancel := context.WithTimeout(ctx, s.interval/2)
				s.Probe(probeCtx)
				cancel()
			}
		}
	}()

	s.log.Info("gRPC server started", zap.String("address", lis.Addr().String()))
	return s.grpc.Serve(lis)
}
