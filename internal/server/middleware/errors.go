package middleware

import (
	"context"

	"GuardLane/internal/model"
	"GuardLane/internal/service"

	"github.com/go-kratos/kratos/v2/middleware"
)

// UnifiedErrors routes every handler error through the unified error handler
// so RPC callers always receive a classified error envelope. Must run inside
// Identity so the error context carries the request ID.
func UnifiedErrors(handler *service.UnifiedErrorHandler) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			reply, err := next(ctx, req)
			if err == nil {
				return reply, nil
			}
			return nil, handler.HandleRPCError(err, ErrorContextFrom(ctx, model.APITypeRPC))
		}
	}
}
