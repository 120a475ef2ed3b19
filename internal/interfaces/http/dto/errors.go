package dto

import (
	"net/http"
	"strings"
)

// General error codes
const (
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeInvalidID     = "INVALID_ID"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRouteNotFound = "ROUTE_NOT_FOUND"
	ErrCodeBodyTooLarge  = "BODY_TOO_LARGE"
)

// Authentication and authorization error codes
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeTokenRevoked       = "TOKEN_REVOKED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ACCOUNT_LOCKED"
)

// Conflict and business rule error codes
const (
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes. Codes that are
// not listed fall back to the suffix rules in GetHTTPStatus.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeInvalidID:     http.StatusBadRequest,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeRouteNotFound: http.StatusNotFound,
	ErrCodeBodyTooLarge:  http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeTokenExpired:       http.StatusUnauthorized,
	ErrCodeTokenInvalid:       http.StatusUnauthorized,
	ErrCodeTokenRevoked:       http.StatusUnauthorized,
	"TOKEN_MAX_REFRESH":       http.StatusUnauthorized,
	ErrCodeInvalidCredentials: http.StatusUnauthorized,
	ErrCodeAccountLocked:      http.StatusLocked,
	"CANNOT_CHANGE_OWN_ROLE":  http.StatusForbidden,
	"CUSTOMER_ONLY":           http.StatusForbidden,

	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeIdempotencyConflict: http.StatusConflict,
	"EMAIL_EXISTS":             http.StatusConflict,
	"SLUG_EXISTS":              http.StatusConflict,
	"SKU_EXISTS":               http.StatusConflict,
	"DUPLICATE_SKU":            http.StatusConflict,
	"DUPLICATE_VARIANT":        http.StatusConflict,
	"RESERVATION_RELEASED":     http.StatusConflict,

	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeInvalidStatus:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock:  http.StatusUnprocessableEntity,
	"ALREADY_ACTIVE":          http.StatusUnprocessableEntity,
	"ALREADY_INACTIVE":        http.StatusUnprocessableEntity,
	"ALREADY_PAID":            http.StatusUnprocessableEntity,
	"CONVERSATION_CLOSED":     http.StatusUnprocessableEntity,
	"EMPTY_CART":              http.StatusUnprocessableEntity,
	"EMPTY_ORDER":             http.StatusUnprocessableEntity,
	"LAST_VARIANT":            http.StatusUnprocessableEntity,
	"NO_VARIANTS":             http.StatusUnprocessableEntity,
	"PRODUCT_UNAVAILABLE":     http.StatusUnprocessableEntity,
	"CART_UNAVAILABLE":        http.StatusUnprocessableEntity,
	"TOO_MANY_IMAGES":         http.StatusUnprocessableEntity,
	"TOO_MANY_TAGS":           http.StatusUnprocessableEntity,
	"UPLOAD_NOT_FOUND":        http.StatusUnprocessableEntity,
	"DISALLOWED_CONTENT_TYPE": http.StatusUnsupportedMediaType,
	"FILE_TOO_LARGE":          http.StatusRequestEntityTooLarge,

	"IDEMPOTENCY_KEY_REQUIRED": http.StatusBadRequest,

	"MAX_CONNECTIONS_REACHED":    http.StatusServiceUnavailable,
	"HUB_CLOSED":                 http.StatusServiceUnavailable,
	"UPLOAD_URL_FAILED":          http.StatusBadGateway,
	"INVENTORY_REQUEST_REJECTED": http.StatusBadGateway,
	"STORAGE_CHECK_FAILED":       http.StatusBadGateway,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unlisted INVALID_* codes are 400, *_NOT_FOUND 404, *_EXISTS 409;
// anything else is 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	switch {
	case strings.HasPrefix(code, "INVALID_"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "_EXISTS"):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping folds the optimistic-lock spellings used by the
// persistence layer into one public code.
var LegacyErrorCodeMapping = map[string]string{
	"CONCURRENT_MODIFICATION": ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_ERROR":   ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_FAILED":  ErrCodeConcurrencyConflict,
	"VERSION_CONFLICT":        ErrCodeConcurrencyConflict,
	"INVALID_TOKEN":           ErrCodeTokenInvalid,
}

// NormalizeErrorCode converts a legacy error code to its public form.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
