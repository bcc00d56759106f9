// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// Every error response carries an HTTP status and one of these stable,
// machine-readable codes:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "queue_full",
//	  "message": "pipeline is saturated, retry later"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeBadSignature = "bad_signature"
	ErrCodeQueueFull    = "queue_full"
	ErrCodeListFailed   = "list_failed"
	ErrCodeUnavailable  = "unavailable"
)
