package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput         = "TENDLC_BAD_INPUT"
	ServiceErrorNotFound         = "TENDLC_NOT_FOUND"
	ServiceErrorUnauthorized     = "TENDLC_UNAUTHORIZED"
	ServiceErrorPermissionDenied = "TENDLC_PERMISSION_DENIED"
	ServiceErrorConflict         = "TENDLC_CONFLICT"
	ServiceErrorRateLimited      = "TENDLC_RATE_LIMITED"
	ServiceErrorRegistryFailed   = "TENDLC_REGISTRY_FAILED"
	ServiceErrorOperationFailed  = "TENDLC_OPERATION_FAILED"
	ServiceErrorInternal         = "TENDLC_INTERNAL_ERROR"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrRecordNotFound):
		return newServiceError(err, goerrors.CategoryNotFound, ServiceErrorNotFound)
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrInvalidRegistrationTransition):
		return newServiceError(err, goerrors.CategoryConflict, ServiceErrorConflict)
	case errors.Is(err, ErrBrandNotRegistered):
		return newServiceError(err, goerrors.CategoryOperation, ServiceErrorOperationFailed)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return newServiceError(err, goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err, goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ServiceErrorPermissionDenied
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorRegistryFailed
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError normalizes any error into the service error envelope.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}

// defaultErrorTranslator prefers the rich error message and falls back to
// the raw error text.
func defaultErrorTranslator(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return strings.TrimSpace(richErr.Message)
	}
	return strings.TrimSpace(err.Error())
}
