package server

import (
	"encoding/json"
	stdhttp "net/http"
	"strconv"
	"time"

	"GuardLane/internal/biz"
	"GuardLane/internal/conf"
	"GuardLane/internal/model"
	"GuardLane/internal/server/middleware"
	"GuardLane/internal/service"
	pkglog "GuardLane/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server serving the health introspection API.
// Every error leaving a handler is rendered by the unified error handler.
func NewHTTPServer(c *conf.Server, errorHandler *service.UnifiedErrorHandler, healthService *service.HealthService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Identity(logHelper),
			middleware.Logging(logHelper),
		),
		http.ErrorEncoder(restErrorEncoder(errorHandler)),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerHealthRoutes(srv, healthService)

	return srv
}

// restErrorEncoder renders handler errors as the unified REST error body.
func restErrorEncoder(errorHandler *service.UnifiedErrorHandler) http.EncodeErrorFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
		errCtx := model.ErrorContext{
			RequestID:      r.Header.Get("X-Request-ID"),
			UserID:         r.Header.Get("X-User-ID"),
			SessionID:      r.Header.Get("X-Session-ID"),
			OrganizationID: r.Header.Get("X-Organization-ID"),
			Endpoint:       r.URL.Path,
			Method:         r.Method,
			Timestamp:      time.Now(),
		}

		status, body := errorHandler.HandleRESTError(err, errCtx)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		var ce *biz.CircuitOpenError
		if kerrors.As(err, &ce) && ce.RetryAfter > 0 {
			w.Header().Set("Retry-After", formatRetryAfter(ce.RetryAfter))
		} else if status == stdhttp.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// formatRetryAfter renders a duration as whole seconds, minimum 1.
func formatRetryAfter(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// registerHealthRoutes mounts the introspection endpoints.
func registerHealthRoutes(srv *http.Server, healthService *service.HealthService) {
	r := srv.Route("/")

	r.GET("/healthz", func(ctx http.Context) error {
		return ctx.Result(stdhttp.StatusOK, healthService.Healthz(ctx))
	})

	r.GET("/v1/resilience/services", func(ctx http.Context) error {
		return ctx.Result(stdhttp.StatusOK, healthService.ListServices(ctx))
	})

	r.GET("/v1/resilience/services/{name}", func(ctx http.Context) error {
		name := ctx.Vars().Get("name")
		health, err := healthService.GetService(ctx, name)
		if err != nil {
			return kerrors.New(stdhttp.StatusNotFound, "NOT_FOUND", err.Error())
		}
		return ctx.Result(stdhttp.StatusOK, health)
	})

	r.GET("/v1/resilience/breakers", func(ctx http.Context) error {
		return ctx.Result(stdhttp.StatusOK, healthService.ListBreakers(ctx))
	})

	r.POST("/v1/resilience/breakers/{name}/reset", func(ctx http.Context) error {
		name := ctx.Vars().Get("name")
		result, err := healthService.ResetBreaker(ctx, name)
		if err != nil {
			return kerrors.New(stdhttp.StatusNotFound, "NOT_FOUND", err.Error())
		}
		return ctx.Result(stdhttp.StatusOK, result)
	})
}
