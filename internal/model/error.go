// Package model contains domain models shared across the biz, data and
// service layers.
package model

import "time"

// ErrorCategory identifies the failure taxonomy bucket an error belongs to.
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryAuthentication  ErrorCategory = "authentication"
	CategoryAuthorization   ErrorCategory = "authorization"
	CategoryNotFound        ErrorCategory = "not_found"
	CategoryConflict        ErrorCategory = "conflict"
	CategoryRateLimit       ErrorCategory = "rate_limit"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryCircuitBreaker  ErrorCategory = "circuit_breaker"
	CategoryServiceDegraded ErrorCategory = "service_degraded"
	CategoryDatabase        ErrorCategory = "database"
	CategoryNetwork         ErrorCategory = "network"
	CategoryInternal        ErrorCategory = "internal"
)

// ErrorSeverity ranks how urgently a failure needs operator attention.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// APIType identifies which transport surface a request arrived on.
type APIType string

const (
	APITypeRPC     APIType = "rpc"
	APITypeREST    APIType = "rest"
	APITypeGraphQL APIType = "graphql"
)

// Classification is the normalized verdict the classifier produces for any
// error. All four fields are always populated.
type Classification struct {
	Category   ErrorCategory `json:"category"`
	Severity   ErrorSeverity `json:"severity"`
	Retryable  bool          `json:"retryable"`
	UserFacing bool          `json:"user_facing"`
}

// ErrorContext carries the caller identity and request metadata attached to
// every handled error. It is supplied by the transport adapters (identity
// middleware) and never inspected by the resilience core itself.
type ErrorContext struct {
	RequestID      string                 `json:"request_id"`
	UserID         string                 `json:"user_id,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Endpoint       string                 `json:"endpoint,omitempty"`
	Method         string                 `json:"method,omitempty"`
	APIType        APIType                `json:"api_type,omitempty"`
	Operation      string                 `json:"operation,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// StructuredError is the normalized record built exactly once per handled
// failure at the unified error handler boundary. It exists for logging and
// rendering only and is never persisted.
type StructuredError struct {
	ID             string         `json:"id"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Classification Classification `json:"classification"`
	Context        ErrorContext   `json:"context"`
	Stack          string         `json:"stack,omitempty"`
	Cause          error          `json:"-"`
}

// GraphQLLocation is a position in a GraphQL document.
type GraphQLLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is the shape GraphQL-sourced errors arrive in from the
// GraphQL transport adapter.
type GraphQLError struct {
	Message    string                 `json:"message"`
	Locations  []GraphQLLocation      `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Error implements the error interface.
func (e *GraphQLError) Error() string {
	return e.Message
}

// GraphQLFormattedError is the caller-visible GraphQL error rendered by the
// unified error handler.
type GraphQLFormattedError struct {
	Message    string                 `json:"message"`
	Locations  []GraphQLLocation      `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions"`
}

// RESTErrorBody is the JSON body rendered for REST callers.
type RESTErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Docs      string `json:"docs"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	Retryable bool   `json:"retryable,omitempty"`
}
