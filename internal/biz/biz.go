// Package biz contains the resilience business logic: error classification,
// circuit breaking, retries, degradation handling and the façade composing
// them.
package biz

import (
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewErrorClassifier,
	NewRetryHandler,
	NewDegradationHandler,
	NewResilienceService,
)
