package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is the private key type for storing RequestContext.
type contextKey string

const requestContextKey contextKey = "guardlane_request_context"

// RequestContext carries request tracing identity through the call chain.
// Every field except RequestID is optional.
type RequestContext struct {
	RequestID      string                 // short request ID, e.g. mgrn0zfqda
	UserID         string                 // authenticated user, if any
	SessionID      string                 // client session
	OrganizationID string                 // tenant scope
	Endpoint       string                 // request path or RPC method
	Method         string                 // HTTP verb, empty for RPC
	StartTime      time.Time              // request start time
	Metadata       map[string]interface{} // extension metadata
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 charset (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID generates a 10 character random request ID.
// base36 keeps it cheap compared to a UUID.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into the Context.
// Called from middleware so the whole request lifecycle carries tracing info.
func WithRequestContext(ctx context.Context, requestID, userID, sessionID, organizationID string) context.Context {
	reqCtx := &RequestContext{
		RequestID:      requestID,
		UserID:         userID,
		SessionID:      sessionID,
		OrganizationID: organizationID,
		StartTime:      time.Now(),
		Metadata:       make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext from the Context.
// Returns a default empty RequestContext when none is present.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts the Request ID from the Context.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetUserID extracts the User ID from the Context.
func GetUserID(ctx context.Context) string {
	return GetRequestContext(ctx).UserID
}

// GetOrganizationID extracts the Organization ID from the Context.
func GetOrganizationID(ctx context.Context) string {
	return GetRequestContext(ctx).OrganizationID
}

// SetEndpoint records the endpoint and method on the RequestContext.
func SetEndpoint(ctx context.Context, endpoint, method string) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.Endpoint = endpoint
	reqCtx.Method = method
}

// SetMetadata attaches extension metadata to the RequestContext.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads extension metadata from the RequestContext.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns how long the request has been running, in ms.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
