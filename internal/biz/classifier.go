package biz

import (
	"errors"
	"net"
	"strings"

	"GuardLane/internal/model"
	pkgerrors "GuardLane/pkg/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"gorm.io/gorm"
)

// ErrorClassifier maps any caught failure to a Classification tuple. It is
// pure and stateless, so a single instance is safely shared by every breaker,
// retry handler and transport adapter in the process.
//
// Classification precedence (first match wins):
//  1. resilience error types (circuit open, timeout, degraded)
//  2. transport error types (kratos/HTTP status code, GraphQL extension code)
//  3. structured database errors, then database keyword heuristics
//  4. network keyword heuristics
//  5. validation heuristics
//  6. default internal/critical
type ErrorClassifier struct{}

// NewErrorClassifier creates a classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// categoryDefaults fixes the severity and booleans carried by each category.
var categoryDefaults = map[model.ErrorCategory]model.Classification{
	model.CategoryValidation:      {Category: model.CategoryValidation, Severity: model.SeverityLow, Retryable: false, UserFacing: true},
	model.CategoryAuthentication:  {Category: model.CategoryAuthentication, Severity: model.SeverityMedium, Retryable: false, UserFacing: true},
	model.CategoryAuthorization:   {Category: model.CategoryAuthorization, Severity: model.SeverityMedium, Retryable: false, UserFacing: true},
	model.CategoryNotFound:        {Category: model.CategoryNotFound, Severity: model.SeverityLow, Retryable: false, UserFacing: true},
	model.CategoryConflict:        {Category: model.CategoryConflict, Severity: model.SeverityMedium, Retryable: false, UserFacing: true},
	model.CategoryRateLimit:       {Category: model.CategoryRateLimit, Severity: model.SeverityMedium, Retryable: true, UserFacing: true},
	model.CategoryTimeout:         {Category: model.CategoryTimeout, Severity: model.SeverityMedium, Retryable: true, UserFacing: true},
	model.CategoryCircuitBreaker:  {Category: model.CategoryCircuitBreaker, Severity: model.SeverityHigh, Retryable: true, UserFacing: true},
	model.CategoryServiceDegraded: {Category: model.CategoryServiceDegraded, Severity: model.SeverityMedium, Retryable: true, UserFacing: true},
	model.CategoryDatabase:        {Category: model.CategoryDatabase, Severity: model.SeverityHigh, Retryable: true, UserFacing: false},
	model.CategoryNetwork:         {Category: model.CategoryNetwork, Severity: model.SeverityHigh, Retryable: true, UserFacing: false},
	model.CategoryInternal:        {Category: model.CategoryInternal, Severity: model.SeverityCritical, Retryable: false, UserFacing: false},
}

// reasonCategories maps UPPER_SNAKE transport reasons (kratos error reasons
// and GraphQL extension codes) to categories.
var reasonCategories = map[string]model.ErrorCategory{
	"BAD_REQUEST":         model.CategoryValidation,
	"BAD_USER_INPUT":      model.CategoryValidation,
	"UNAUTHORIZED":        model.CategoryAuthentication,
	"UNAUTHENTICATED":     model.CategoryAuthentication,
	"FORBIDDEN":           model.CategoryAuthorization,
	"NOT_FOUND":           model.CategoryNotFound,
	"CONFLICT":            model.CategoryConflict,
	"TOO_MANY_REQUESTS":   model.CategoryRateLimit,
	"RATE_LIMITED":        model.CategoryRateLimit,
	"TIMEOUT":             model.CategoryTimeout,
	"SERVICE_UNAVAILABLE": model.CategoryCircuitBreaker,
}

// databaseKeywords and networkKeywords drive the heuristic fallback for
// opaque third-party errors. Matching is case-insensitive substring.
var (
	databaseKeywords   = []string{"database", "postgres", "mysql", "sql", "connection", "constraint"}
	networkKeywords    = []string{"network", "econnreset", "enotfound", "econnrefused", "etimedout"}
	validationKeywords = []string{"validation", "invalid"}
)

// Classify returns a well-formed Classification for any error, nil included.
// It never returns an empty tuple and never panics.
func (c *ErrorClassifier) Classify(err error) model.Classification {
	if err == nil {
		return categoryDefaults[model.CategoryInternal]
	}

	// 1. Resilience error types attached at throw time.
	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return categoryDefaults[model.CategoryCircuitBreaker]
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return categoryDefaults[model.CategoryTimeout]
	}
	var degradedErr *ServiceDegradedError
	if errors.As(err, &degradedErr) {
		return categoryDefaults[model.CategoryServiceDegraded]
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return categoryDefaults[model.CategoryValidation]
	}

	// 2. Transport error types.
	var kerr *kerrors.Error
	if errors.As(err, &kerr) {
		if cat, ok := reasonCategories[kerr.Reason]; ok {
			return categoryDefaults[cat]
		}
		return c.classifyHTTPStatus(int(kerr.Code))
	}
	var gqlErr *model.GraphQLError
	if errors.As(err, &gqlErr) {
		if code, ok := gqlErr.Extensions["code"].(string); ok {
			if cat, found := reasonCategories[code]; found {
				return categoryDefaults[cat]
			}
		}
		return categoryDefaults[model.CategoryInternal]
	}

	// 3. Structured database errors before keyword heuristics.
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return categoryDefaults[model.CategoryNotFound]
	}
	if dbErr := pkgerrors.AsDatabaseError(err); dbErr != nil {
		switch dbErr.Type {
		case pkgerrors.ErrorTypeNotFound:
			return categoryDefaults[model.CategoryNotFound]
		case pkgerrors.ErrorTypeDuplicateKey, pkgerrors.ErrorTypeConstraintViolation:
			return categoryDefaults[model.CategoryConflict]
		default:
			return categoryDefaults[model.CategoryDatabase]
		}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, databaseKeywords) {
		return categoryDefaults[model.CategoryDatabase]
	}

	// 4. Network failures: typed checks first, then keyword match.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return categoryDefaults[model.CategoryTimeout]
		}
		return categoryDefaults[model.CategoryNetwork]
	}
	if containsAny(msg, networkKeywords) {
		return categoryDefaults[model.CategoryNetwork]
	}

	// 5. Validation heuristics for errors from opaque validator libraries.
	if containsAny(msg, validationKeywords) {
		return categoryDefaults[model.CategoryValidation]
	}

	// 6. Everything else is an internal fault.
	return categoryDefaults[model.CategoryInternal]
}

// classifyHTTPStatus applies the fixed status-code table. Unknown statuses
// classify as internal.
func (c *ErrorClassifier) classifyHTTPStatus(status int) model.Classification {
	switch status {
	case 400:
		return categoryDefaults[model.CategoryValidation]
	case 401:
		return categoryDefaults[model.CategoryAuthentication]
	case 403:
		return categoryDefaults[model.CategoryAuthorization]
	case 404:
		return categoryDefaults[model.CategoryNotFound]
	case 408:
		return categoryDefaults[model.CategoryTimeout]
	case 409:
		return categoryDefaults[model.CategoryConflict]
	case 429:
		return categoryDefaults[model.CategoryRateLimit]
	case 503:
		return categoryDefaults[model.CategoryCircuitBreaker]
	default:
		return categoryDefaults[model.CategoryInternal]
	}
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
