package generator

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags the terminal failure classes the generator can surface. Callers
// switch on the tag; there is no error hierarchy behind it.
type Kind string

const (
	KindConfiguration      Kind = "CONFIGURATION_ERROR"
	KindRateLimit          Kind = "RATE_LIMIT_ERROR"
	KindTimeout            Kind = "TIMEOUT_ERROR"
	KindNetwork            Kind = "NETWORK_ERROR"
	KindUpstream           Kind = "UPSTREAM_API_ERROR"
	KindResponseValidation Kind = "RESPONSE_VALIDATION_ERROR"
)

// Error is the tagged failure returned by Generate once the internal retry
// budget is spent. RetryAfter is only set for rate-limit failures where the
// provider supplied a wait hint; UpstreamStatus only for upstream HTTP
// failures.
type Error struct {
	Kind           Kind
	UpstreamStatus int
	RetryAfter     time.Duration
	Err            error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// AsError unwraps err into a generator Error when possible.
func AsError(err error) (*Error, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}
