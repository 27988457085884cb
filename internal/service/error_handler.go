// Package service exposes the resilience core to the transports: the unified
// error handler renders classified errors per transport, and the health
// service backs the introspection endpoints.
package service

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"GuardLane/internal/biz"
	"GuardLane/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const (
	// genericMessage replaces non-user-facing messages so internals (SQL
	// text, stack fragments) never reach clients.
	genericMessage = "An unexpected error occurred"

	// docsBaseURL is the docs link included in every REST error body.
	docsBaseURL = "https://docs.guardlane.dev/errors"
)

// UnifiedErrorHandler is the single point where an error becomes a
// caller-visible shape. It classifies the error, logs one StructuredError,
// and renders the transport-appropriate object. Every other layer only
// observes errors without altering their propagation.
type UnifiedErrorHandler struct {
	classifier *biz.ErrorClassifier
	logger     *log.Helper
}

// NewUnifiedErrorHandler creates the cross-transport error handler.
func NewUnifiedErrorHandler(classifier *biz.ErrorClassifier, logger log.Logger) *UnifiedErrorHandler {
	return &UnifiedErrorHandler{
		classifier: classifier,
		logger:     log.NewHelper(logger),
	}
}

// categoryReason maps an error category to the UPPER_SNAKE reason used in RPC
// error envelopes and REST bodies.
func categoryReason(category model.ErrorCategory) string {
	switch category {
	case model.CategoryValidation:
		return "BAD_REQUEST"
	case model.CategoryAuthentication:
		return "UNAUTHORIZED"
	case model.CategoryAuthorization:
		return "FORBIDDEN"
	case model.CategoryNotFound:
		return "NOT_FOUND"
	case model.CategoryConflict:
		return "CONFLICT"
	case model.CategoryRateLimit:
		return "TOO_MANY_REQUESTS"
	case model.CategoryTimeout:
		return "TIMEOUT"
	case model.CategoryCircuitBreaker, model.CategoryServiceDegraded:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// categoryStatus maps an error category to an HTTP status code.
func categoryStatus(category model.ErrorCategory) int {
	switch category {
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryAuthentication:
		return http.StatusUnauthorized
	case model.CategoryAuthorization:
		return http.StatusForbidden
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryConflict:
		return http.StatusConflict
	case model.CategoryRateLimit:
		return http.StatusTooManyRequests
	case model.CategoryTimeout:
		return http.StatusRequestTimeout
	case model.CategoryCircuitBreaker, model.CategoryServiceDegraded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// categoryGraphQLCode maps an error category to a GraphQL extension code.
func categoryGraphQLCode(category model.ErrorCategory) string {
	switch category {
	case model.CategoryValidation:
		return "BAD_USER_INPUT"
	case model.CategoryAuthentication:
		return "UNAUTHENTICATED"
	case model.CategoryAuthorization:
		return "FORBIDDEN"
	case model.CategoryNotFound:
		return "NOT_FOUND"
	case model.CategoryTimeout:
		return "TIMEOUT"
	case model.CategoryCircuitBreaker, model.CategoryServiceDegraded:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// buildStructuredError normalizes an error into the record logged exactly
// once per handled failure. Never persisted, only logged and rendered.
func (h *UnifiedErrorHandler) buildStructuredError(err error, errCtx model.ErrorContext) *model.StructuredError {
	classification := h.classifier.Classify(err)

	if errCtx.Timestamp.IsZero() {
		errCtx.Timestamp = time.Now()
	}
	if errCtx.RequestID == "" {
		errCtx.RequestID = uuid.NewString()
	}

	return &model.StructuredError{
		ID:             uuid.NewString(),
		Code:           categoryReason(classification.Category),
		Message:        err.Error(),
		Classification: classification,
		Context:        errCtx,
		Stack:          string(debug.Stack()),
		Cause:          err,
	}
}

// logStructuredError emits the single log line per handled error, level
// derived from severity.
func (h *UnifiedErrorHandler) logStructuredError(se *model.StructuredError) {
	kvs := []interface{}{
		"msg", fmt.Sprintf("handled %s error: %s", se.Context.APIType, se.Message),
		"error_id", se.ID,
		"code", se.Code,
		"category", se.Classification.Category,
		"severity", se.Classification.Severity,
		"retryable", se.Classification.Retryable,
		"user_facing", se.Classification.UserFacing,
		"request_id", se.Context.RequestID,
		"endpoint", se.Context.Endpoint,
		"operation", se.Context.Operation,
		"type", "error",
	}

	switch se.Classification.Severity {
	case model.SeverityCritical, model.SeverityHigh:
		h.logger.Errorw(kvs...)
	case model.SeverityMedium:
		h.logger.Warnw(kvs...)
	case model.SeverityLow:
		h.logger.Infow(kvs...)
	default:
		h.logger.Debugw(kvs...)
	}
}

// visibleMessage returns the raw message for user-facing errors, the generic
// fallback for everything else.
func visibleMessage(se *model.StructuredError) string {
	if se.Classification.UserFacing {
		return se.Message
	}
	return genericMessage
}

// HandleRPCError renders an error for the RPC transport. Errors already in
// envelope form pass through unchanged; resilience errors render fixed codes;
// everything else maps through the category table.
func (h *UnifiedErrorHandler) HandleRPCError(err error, errCtx model.ErrorContext) *errors.Error {
	errCtx.APIType = model.APITypeRPC

	if ke, ok := err.(*errors.Error); ok {
		// Already shaped by the transport, still log it.
		se := h.buildStructuredError(err, errCtx)
		h.logStructuredError(se)
		return ke
	}

	se := h.buildStructuredError(err, errCtx)
	h.logStructuredError(se)

	var ce *biz.CircuitOpenError
	var te *biz.TimeoutError
	var de *biz.ServiceDegradedError
	switch {
	case errors.As(err, &ce):
		return errors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", visibleMessage(se)).
			WithMetadata(map[string]string{"request_id": se.Context.RequestID, "retry_after": ce.RetryAfter.String()})
	case errors.As(err, &te):
		return errors.New(http.StatusRequestTimeout, "TIMEOUT", visibleMessage(se)).
			WithMetadata(map[string]string{"request_id": se.Context.RequestID})
	case errors.As(err, &de):
		return errors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", visibleMessage(se)).
			WithMetadata(map[string]string{"request_id": se.Context.RequestID})
	}

	return errors.New(categoryStatus(se.Classification.Category), se.Code, visibleMessage(se)).
		WithMetadata(map[string]string{"request_id": se.Context.RequestID})
}

// HandleRESTError renders an error as an HTTP status plus JSON body. The body
// always carries code, docs link, message and request ID.
func (h *UnifiedErrorHandler) HandleRESTError(err error, errCtx model.ErrorContext) (int, *model.RESTErrorBody) {
	errCtx.APIType = model.APITypeREST

	se := h.buildStructuredError(err, errCtx)
	h.logStructuredError(se)

	status := categoryStatus(se.Classification.Category)
	code := se.Code
	message := visibleMessage(se)

	// Errors already carrying their own envelope render their own code and
	// status.
	if ke, ok := err.(*errors.Error); ok {
		status = int(ke.Code)
		code = ke.Reason
		message = ke.Message
	}

	var ce *biz.CircuitOpenError
	var te *biz.TimeoutError
	var de *biz.ServiceDegradedError
	switch {
	case errors.As(err, &ce):
		status, code = http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	case errors.As(err, &te):
		status, code = http.StatusRequestTimeout, "TIMEOUT"
	case errors.As(err, &de):
		status, code = http.StatusServiceUnavailable, "SERVICE_DEGRADED"
	}

	body := &model.RESTErrorBody{
		Code:      code,
		Message:   message,
		Docs:      fmt.Sprintf("%s/%s", docsBaseURL, code),
		RequestID: se.Context.RequestID,
		Timestamp: se.Context.Timestamp.UTC().Format(time.RFC3339),
		Retryable: se.Classification.Retryable,
	}
	return status, body
}

// HandleGraphQLError renders a formatted GraphQL error. When the source is
// already a GraphQL error its message, locations and path are preserved and
// only the extensions are augmented.
func (h *UnifiedErrorHandler) HandleGraphQLError(err error, errCtx model.ErrorContext) *model.GraphQLFormattedError {
	errCtx.APIType = model.APITypeGraphQL

	se := h.buildStructuredError(err, errCtx)
	h.logStructuredError(se)

	extensions := map[string]interface{}{
		"code":      categoryGraphQLCode(se.Classification.Category),
		"category":  string(se.Classification.Category),
		"severity":  string(se.Classification.Severity),
		"retryable": se.Classification.Retryable,
		"requestId": se.Context.RequestID,
		"timestamp": se.Context.Timestamp.UTC().Format(time.RFC3339),
	}

	var gqlErr *model.GraphQLError
	if errors.As(err, &gqlErr) {
		for k, v := range gqlErr.Extensions {
			if _, taken := extensions[k]; !taken {
				extensions[k] = v
			}
		}
		return &model.GraphQLFormattedError{
			Message:    gqlErr.Message,
			Locations:  gqlErr.Locations,
			Path:       gqlErr.Path,
			Extensions: extensions,
		}
	}

	message := visibleMessage(se)

	var ce *biz.CircuitOpenError
	var te *biz.TimeoutError
	var de *biz.ServiceDegradedError
	switch {
	case errors.As(err, &ce):
		extensions["code"] = "SERVICE_UNAVAILABLE"
		message = "Service temporarily unavailable"
	case errors.As(err, &te):
		extensions["code"] = "TIMEOUT"
		message = "Request timed out"
	case errors.As(err, &de):
		extensions["code"] = "SERVICE_UNAVAILABLE"
		message = "Service is running in degraded mode"
	}

	return &model.GraphQLFormattedError{
		Message:    message,
		Extensions: extensions,
	}
}
