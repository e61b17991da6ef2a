package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(ErrBadRequest, "Test error", http.StatusBadRequest)

	assert.Equal(t, ErrBadRequest, err.Code)
	assert.Equal(t, "Test error", err.Message)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Nil(t, err.Err)
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")
	err := Wrap(originalErr, ErrInternal, "Wrapped error", http.StatusInternalServerError)

	assert.Equal(t, ErrInternal, err.Code)
	assert.Equal(t, "Wrapped error", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
	assert.Equal(t, originalErr, err.Err)
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "Error without details",
			err: &AppError{
				Code:    ErrBadRequest,
				Message: "Invalid request",
			},
			expected: "[BAD_REQUEST] Invalid request",
		},
		{
			name: "Error with details",
			err: &AppError{
				Code:    ErrBadRequest,
				Message: "Invalid request",
				Details: "Missing field: issuer",
			},
			expected: "[BAD_REQUEST] Invalid request: Missing field: issuer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_WithMetadata(t *testing.T) {
	err := New(ErrTenantNotFound, "Tenant not found", http.StatusNotFound)
	err.WithMetadata("tenant_id", "123")

	assert.NotNil(t, err.Metadata)
	assert.Equal(t, "123", err.Metadata["tenant_id"])

	// Add another metadata field
	err.WithMetadata("attempted_at", "2024-01-01")
	assert.Equal(t, 2, len(err.Metadata))
}

func TestAppError_WithDetails(t *testing.T) {
	err := New(ErrBadRequest, "Invalid request", http.StatusBadRequest)
	err.WithDetails("Issuer cannot be empty")

	assert.Equal(t, "Issuer cannot be empty", err.Details)
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	err := Wrap(originalErr, ErrInternal, "Wrapped error", http.StatusInternalServerError)

	unwrapped := err.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name           string
		createError    func() *AppError
		expectedCode   ErrorCode
		expectedStatus int
	}{
		{
			name:           "Internal",
			createError:    func() *AppError { return Internal("System error", nil) },
			expectedCode:   ErrInternal,
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "NotFound",
			createError:    func() *AppError { return NotFound("Tenant") },
			expectedCode:   ErrNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "BadRequest",
			createError:    func() *AppError { return BadRequest("Invalid input") },
			expectedCode:   ErrBadRequest,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Unauthorized",
			createError:    func() *AppError { return Unauthorized("Not authenticated") },
			expectedCode:   ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Forbidden",
			createError:    func() *AppError { return Forbidden("Access denied") },
			expectedCode:   ErrForbidden,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Conflict",
			createError:    func() *AppError { return Conflict("Resource exists") },
			expectedCode:   ErrConflict,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "ValidationError",
			createError:    func() *AppError { return ValidationError("Validation failed") },
			expectedCode:   ErrValidation,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Timeout",
			createError:    func() *AppError { return Timeout("Request timeout") },
			expectedCode:   ErrTimeout,
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name:           "RateLimit",
			createError:    func() *AppError { return RateLimit("Too many requests") },
			expectedCode:   ErrRateLimit,
			expectedStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.createError()
			assert.Equal(t, tt.expectedCode, err.Code)
			assert.Equal(t, tt.expectedStatus, err.StatusCode)
		})
	}
}

func TestResourceSpecificErrors(t *testing.T) {
	t.Run("TenantNotFound", func(t *testing.T) {
		err := TenantNotFound("tenant-123")
		assert.Equal(t, ErrTenantNotFound, err.Code)
		assert.Equal(t, http.StatusNotFound, err.StatusCode)
		assert.Equal(t, "tenant-123", err.Metadata["tenant_id"])
	})

	t.Run("TenantAlreadyExists", func(t *testing.T) {
		err := TenantAlreadyExists("acme")
		assert.Equal(t, ErrTenantAlreadyExists, err.Code)
		assert.Equal(t, http.StatusConflict, err.StatusCode)
		assert.Equal(t, "acme", err.Metadata["tenant_name"])
	})

	t.Run("TenantDisabled", func(t *testing.T) {
		err := TenantDisabled("tenant-123")
		assert.Equal(t, ErrTenantDisabled, err.Code)
		assert.Equal(t, http.StatusForbidden, err.StatusCode)
		assert.Equal(t, "tenant-123", err.Metadata["tenant_id"])
	})
}

func TestSAMLErrors(t *testing.T) {
	t.Run("InvalidSAMLResponse", func(t *testing.T) {
		err := InvalidSAMLResponse()
		assert.Equal(t, ErrInvalidSAMLResponse, err.Code)
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
		// The browser-facing message carries no validation specifics.
		assert.Equal(t, "Invalid SAML response", err.Message)
		assert.Empty(t, err.Details)
	})

	t.Run("LoginStateNotFound", func(t *testing.T) {
		err := LoginStateNotFound()
		assert.Equal(t, ErrLoginStateNotFound, err.Code)
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
	})
}

func TestAuthenticationErrors(t *testing.T) {
	t.Run("InvalidToken", func(t *testing.T) {
		err := InvalidToken("token malformed")
		assert.Equal(t, ErrInvalidToken, err.Code)
		assert.Equal(t, "token malformed", err.Details)
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
	})

	t.Run("TokenExpired", func(t *testing.T) {
		err := TokenExpired()
		assert.Equal(t, ErrTokenExpired, err.Code)
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
	})
}

func TestDatabaseErrors(t *testing.T) {
	t.Run("DatabaseError", func(t *testing.T) {
		originalErr := errors.New("connection timeout")
		err := DatabaseError("insert tenant", originalErr)
		assert.Equal(t, ErrDatabase, err.Code)
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		assert.Equal(t, "insert tenant", err.Details)
		assert.Equal(t, originalErr, err.Err)
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		err := DuplicateKey("name")
		assert.Equal(t, ErrDuplicateKey, err.Code)
		assert.Equal(t, http.StatusConflict, err.StatusCode)
		assert.Equal(t, "name", err.Metadata["key"])
	})
}

func TestIsErrorCode(t *testing.T) {
	t.Run("Matching error code", func(t *testing.T) {
		err := TenantNotFound("tenant-123")
		assert.True(t, IsErrorCode(err, ErrTenantNotFound))
	})

	t.Run("Non-matching error code", func(t *testing.T) {
		err := TenantNotFound("tenant-123")
		assert.False(t, IsErrorCode(err, ErrBadRequest))
	})

	t.Run("Non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		assert.False(t, IsErrorCode(err, ErrInternal))
	})
}

func TestGetStatusCode(t *testing.T) {
	t.Run("AppError status code", func(t *testing.T) {
		err := BadRequest("Invalid input")
		assert.Equal(t, http.StatusBadRequest, GetStatusCode(err))
	})

	t.Run("Non-AppError returns 500", func(t *testing.T) {
		err := errors.New("standard error")
		assert.Equal(t, http.StatusInternalServerError, GetStatusCode(err))
	})
}

func TestErrorChaining(t *testing.T) {
	t.Run("Chain multiple errors", func(t *testing.T) {
		// Create a chain of errors
		baseErr := errors.New("connection refused")
		dbErr := Wrap(baseErr, ErrDatabase, "Failed to connect", http.StatusInternalServerError)
		appErr := Wrap(dbErr, ErrInternal, "Service unavailable", http.StatusServiceUnavailable)

		// Verify we can unwrap the chain
		assert.Equal(t, dbErr, appErr.Unwrap())
		assert.Equal(t, baseErr, dbErr.Unwrap())
	})
}

func TestErrorMetadataChaining(t *testing.T) {
	err := TenantNotFound("tenant-123")
	err.WithMetadata("action", "login")
	err.WithMetadata("ip", "192.168.1.1")
	err.WithDetails("Tenant may have been deleted")

	assert.Equal(t, 3, len(err.Metadata))
	assert.Equal(t, "tenant-123", err.Metadata["tenant_id"])
	assert.Equal(t, "login", err.Metadata["action"])
	assert.Equal(t, "192.168.1.1", err.Metadata["ip"])
	assert.Equal(t, "Tenant may have been deleted", err.Details)
}

// Benchmark tests
func BenchmarkNewError(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrBadRequest, "Test error", http.StatusBadRequest)
	}
}

func BenchmarkWrapError(b *testing.B) {
	originalErr := errors.New("original error")
	for i := 0; i < b.N; i++ {
		_ = Wrap(originalErr, ErrInternal, "Wrapped error", http.StatusInternalServerError)
	}
}

func BenchmarkTenantNotFound(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = TenantNotFound("tenant-123")
	}
}

func BenchmarkWithMetadata(b *testing.B) {
	for i := 0; i < b.N; i++ {
		err := New(ErrBadRequest, "Test", http.StatusBadRequest)
		err.WithMetadata("key", "value")
	}
}
