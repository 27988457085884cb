package server

import (
	"GuardLane/internal/conf"
	"GuardLane/internal/server/middleware"
	"GuardLane/internal/service"
	pkglog "GuardLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer new a gRPC server. RPC handlers registered here get the
// unified error envelope for free via the middleware chain.
func NewGRPCServer(c *conf.Server, errorHandler *service.UnifiedErrorHandler, logger log.Logger) *grpc.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
			middleware.Identity(logHelper),
			middleware.Logging(logHelper),
			middleware.UnifiedErrors(errorHandler),
		),
	}
	if c.Grpc.Network != "" {
		opts = append(opts, grpc.Network(c.Grpc.Network))
	}
	if c.Grpc.Addr != "" {
		opts = append(opts, grpc.Address(c.Grpc.Addr))
	}
	if c.Grpc.Timeout != nil {
		opts = append(opts, grpc.Timeout(c.Grpc.Timeout.AsDuration()))
	}
	srv := grpc.NewServer(opts...)

	// Standard gRPC health protocol for load balancer probes.
	healthpb.RegisterHealthServer(srv, health.NewServer())

	return srv
}
