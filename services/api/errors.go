package api

import (
	"errors"
	"net/http"

	"tenxcards/services/generator"
	"tenxcards/services/ledger"
	"tenxcards/services/reconciler"
)

// Error codes surfaced in the response envelope.
const (
	codeInvalidInput      = "INVALID_INPUT"
	codeUnauthorized      = "UNAUTHORIZED"
	codeBadCredentials    = "INVALID_CREDENTIALS"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeDuplicateRequest  = "DUPLICATE_REQUEST_ID"
	codeFeatureDisabled   = "FEATURE_DISABLED"
	codeInvalidCounts     = "INVALID_COUNTS"
	codeSessionNotFound   = "SESSION_NOT_FOUND"
	codeSessionCompleted  = "SESSION_ALREADY_COMPLETED"
	codeTransactionFailed = "TRANSACTION_FAILED"
	codeDependencyMissing = "DEPENDENCY_NOT_CONFIGURED"
	codeInternal          = "INTERNAL_ERROR"
)

// apiError is the one error shape handlers produce. It carries the HTTP
// status, the machine-readable code, and optional structured details.
type apiError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *apiError) Error() string { return e.Message }

func badRequest(message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: codeInvalidInput, Message: message}
}

func unauthorized(message string) *apiError {
	return &apiError{Status: http.StatusUnauthorized, Code: codeUnauthorized, Message: message}
}

func notFound(message string) *apiError {
	return &apiError{Status: http.StatusNotFound, Code: codeNotFound, Message: message}
}

func internal(err error) *apiError {
	return &apiError{Status: http.StatusInternalServerError, Code: codeInternal, Message: err.Error()}
}

// mapGeneratorError translates a generation failure into the envelope. The
// status follows the failure class so clients can distinguish "fix your
// request" from "try again later".
func mapGeneratorError(err error) *apiError {
	genErr, ok := generator.AsError(err)
	if !ok {
		return internal(err)
	}

	out := &apiError{Code: string(genErr.Kind), Message: genErr.Error()}
	switch genErr.Kind {
	case generator.KindConfiguration:
		out.Status = http.StatusInternalServerError
	case generator.KindRateLimit:
		out.Status = http.StatusTooManyRequests
		if genErr.RetryAfter > 0 {
			out.Details = map[string]any{"retry_after": int(genErr.RetryAfter.Seconds())}
		}
	case generator.KindTimeout:
		out.Status = http.StatusGatewayTimeout
	case generator.KindNetwork:
		out.Status = http.StatusServiceUnavailable
	case generator.KindUpstream, generator.KindResponseValidation:
		out.Status = http.StatusBadGateway
	default:
		out.Status = http.StatusInternalServerError
	}
	return out
}

// mapBatchError translates ledger and reconciler failures for the batch
// endpoint.
func mapBatchError(err error) *apiError {
	var counts *reconciler.ErrInvalidCounts
	if errors.As(err, &counts) {
		return &apiError{
			Status:  http.StatusBadRequest,
			Code:    codeInvalidCounts,
			Message: counts.Error(),
			Details: map[string]any{"expected": counts.Expected, "received": counts.Received},
		}
	}
	if errors.Is(err, reconciler.ErrNoAcceptedCards) {
		return badRequest(err.Error())
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return &apiError{Status: http.StatusNotFound, Code: codeSessionNotFound, Message: "generation session not found"}
	}
	if errors.Is(err, ledger.ErrAlreadyCompleted) {
		return &apiError{Status: http.StatusConflict, Code: codeSessionCompleted, Message: "generation session already completed"}
	}
	var txErr *reconciler.ErrTransactionFailed
	if errors.As(err, &txErr) {
		return &apiError{Status: http.StatusInternalServerError, Code: codeTransactionFailed, Message: txErr.Error()}
	}
	return internal(err)
}
