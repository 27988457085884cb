// Package middleware provides transport middleware for identity extraction,
// request logging and unified error rendering.
package middleware

import (
	"context"
	"time"

	"GuardLane/internal/model"
	pkglog "GuardLane/pkg/log"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Identity headers supplied by the edge. All optional except the request ID,
// which is generated when absent.
const (
	headerRequestID    = "X-Request-ID"
	headerUserID       = "X-User-ID"
	headerSessionID    = "X-Session-ID"
	headerOrganization = "X-Organization-ID"
)

// Identity extracts caller identity from transport headers and injects a
// RequestContext so every downstream log line carries the same request ID.
// Works for both HTTP and gRPC via the transport header interface.
func Identity(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			var (
				requestID string
				userID    string
				sessionID string
				orgID     string
				endpoint  string
				method    string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				header := tr.RequestHeader()
				requestID = header.Get(headerRequestID)
				userID = header.Get(headerUserID)
				sessionID = header.Get(headerSessionID)
				orgID = header.Get(headerOrganization)
				endpoint = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					endpoint = httpReq.URL.Path
					method = httpReq.Method
				}
			}

			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, userID, sessionID, orgID)
			pkglog.SetEndpoint(ctx, endpoint, method)

			if tr, ok := transport.FromServerContext(ctx); ok {
				// Echo the request ID so clients can correlate.
				tr.ReplyHeader().Set(headerRequestID, requestID)
			}

			return handler(ctx, req)
		}
	}
}

// ErrorContextFrom builds the caller identity record handed to the unified
// error handler from the RequestContext injected by Identity.
func ErrorContextFrom(ctx context.Context, apiType model.APIType) model.ErrorContext {
	reqCtx := pkglog.GetRequestContext(ctx)

	var operation string
	if tr, ok := transport.FromServerContext(ctx); ok {
		operation = tr.Operation()
	}

	return model.ErrorContext{
		RequestID:      reqCtx.RequestID,
		UserID:         reqCtx.UserID,
		SessionID:      reqCtx.SessionID,
		OrganizationID: reqCtx.OrganizationID,
		Endpoint:       reqCtx.Endpoint,
		Method:         reqCtx.Method,
		APIType:        apiType,
		Operation:      operation,
		Timestamp:      time.Now(),
		Metadata:       reqCtx.Metadata,
	}
}
