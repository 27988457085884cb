package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Test MySQL server error codes map to the right types
func TestClassifyDBError_MySQLCodes(t *testing.T) {
	cases := []struct {
		code     uint16
		expected DatabaseErrorType
	}{
		{1062, ErrorTypeDuplicateKey},
		{1451, ErrorTypeConstraintViolation},
		{1452, ErrorTypeConstraintViolation},
		{1213, ErrorTypeDeadlock},
		{1048, ErrorTypeInvalidValue},
		{1366, ErrorTypeInvalidValue},
		{9999, ErrorTypeUnknown},
	}

	for _, tc := range cases {
		got := ClassifyDBError(&mysql.MySQLError{Number: tc.code, Message: "x"})
		require.NotNil(t, got, "code %d", tc.code)
		assert.Equal(t, tc.expected, got.Type, "code %d", tc.code)
		assert.Equal(t, tc.code, got.MySQLErrCode)
	}
}

// Test gorm record-not-found classification
func TestClassifyDBError_RecordNotFound(t *testing.T) {
	got := ClassifyDBError(gorm.ErrRecordNotFound)
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeNotFound, got.Type)

	wrapped := fmt.Errorf("loading report: %w", gorm.ErrRecordNotFound)
	got = ClassifyDBError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeNotFound, got.Type)
}

// Test connection failure message patterns
func TestClassifyDBError_ConnectionPatterns(t *testing.T) {
	for _, msg := range []string{
		"dial tcp 10.0.0.5:3306: connect: connection refused",
		"read: connection reset by peer",
		"write: broken pipe",
		"driver: bad connection",
	} {
		got := ClassifyDBError(stderrors.New(msg))
		require.NotNil(t, got, msg)
		assert.Equal(t, ErrorTypeConnectionError, got.Type, msg)
	}
}

// Test AsDatabaseError leaves unrecognized errors alone
func TestAsDatabaseError_Unrecognized(t *testing.T) {
	assert.Nil(t, AsDatabaseError(nil))
	assert.Nil(t, AsDatabaseError(stderrors.New("some business rule violation")))

	// Already classified errors pass through.
	original := ClassifyDBError(&mysql.MySQLError{Number: 1062, Message: "dup"})
	wrapped := fmt.Errorf("saving: %w", original)
	got := AsDatabaseError(wrapped)
	assert.Same(t, original, got)
}

// Test retryability: only deadlocks and connection drops
func TestDatabaseError_Retryable(t *testing.T) {
	assert.True(t, ClassifyDBError(&mysql.MySQLError{Number: 1213}).Retryable())
	assert.True(t, ClassifyDBError(stderrors.New("dial tcp: connection refused")).Retryable())
	assert.False(t, ClassifyDBError(&mysql.MySQLError{Number: 1062}).Retryable())
	assert.False(t, ClassifyDBError(gorm.ErrRecordNotFound).Retryable())
}

// Test Unwrap preserves errors.Is through the wrapper
func TestDatabaseError_Unwrap(t *testing.T) {
	underlying := &mysql.MySQLError{Number: 1062, Message: "dup"}
	dbErr := ClassifyDBError(underlying)

	assert.True(t, stderrors.Is(dbErr, error(underlying)))

	var target *mysql.MySQLError
	require.True(t, stderrors.As(dbErr, &target))
	assert.Equal(t, uint16(1062), target.Number)
}
