package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorConfigInvalid     = "RELAY_CONFIG_INVALID"
	RelayErrorUnauthorized      = "RELAY_UNAUTHORIZED"
	RelayErrorSourceUnavailable = "RELAY_SOURCE_UNAVAILABLE"
	RelayErrorSourceMalformed   = "RELAY_SOURCE_MALFORMED"
	RelayErrorSinkRejected      = "RELAY_SINK_REJECTED"
	RelayErrorSinkUnavailable   = "RELAY_SINK_UNAVAILABLE"
	RelayErrorStoreFailed       = "RELAY_STORE_FAILED"
	RelayErrorRefreshFailed     = "RELAY_REFRESH_FAILED"
	RelayErrorInternal          = "RELAY_INTERNAL_ERROR"
)

// NewUnauthorizedError flags a rejected credential; the sync loop responds
// with exactly one reactive refresh and retry.
func NewUnauthorizedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(RelayErrorUnauthorized)
}

// NewSourceUnavailableError flags a transient fetch failure; the cycle aborts
// with no state mutated and the next scheduled cycle retries.
func NewSourceUnavailableError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(RelayErrorSourceUnavailable)
}

func NewSourceMalformedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(RelayErrorSourceMalformed)
}

// NewSinkRejectedError flags a payload the sink refused outright.
func NewSinkRejectedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusBadRequest).
		WithTextCode(RelayErrorSinkRejected)
}

func NewSinkUnavailableError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(RelayErrorSinkUnavailable)
}

func WrapStoreError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(RelayErrorStoreFailed)
}

func WrapRefreshError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryAuth, message).
		WithCode(http.StatusUnauthorized).
		WithTextCode(RelayErrorRefreshFailed)
}

// IsAuthError reports whether err indicates a rejected or expired credential,
// which is the only failure that triggers the reactive refresh path.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			return true
		}
	}
	return false
}

// IsTransientError reports whether err is worth retrying on the next
// scheduled cycle rather than surfacing as a defect.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
			return true
		}
	}
	return false
}

// ErrorMapper coerces an arbitrary error into the rich envelope.
type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper classifies err and fills in the HTTP status and text
// code when the source left them blank.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return relayErrorMapper(err)
}

func relayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid_grant"):
		return ensureRelayErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(RelayErrorUnauthorized))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureRelayErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(RelayErrorConfigInvalid))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorConfigInvalid
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return RelayErrorUnauthorized
	case goerrors.CategoryExternal, goerrors.CategoryRateLimit:
		return RelayErrorSourceUnavailable
	case goerrors.CategoryOperation:
		return RelayErrorSourceMalformed
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
