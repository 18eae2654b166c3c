package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tendlc/core"
)

const (
	metaStatusCode   = "status_code"
	metaRegistryCode = "registry_code"
	metaOperation    = "operation"
	metaTransport    = "transport"
)

// Registry error codes with an operator-facing explanation.
var codeMessages = map[string]string{
	"10002": "Invalid phone number format. Use E.164, for example +15125550100",
	"10005": "The brand or campaign was not found at the registry",
	"10007": "The registry hit an unexpected error. Try again later",
	"10009": "Registry authentication failed. Check the configured API key",
	"10010": "The registry API key is not allowed to perform this action",
	"10011": "The messaging spend limit was reached. Raise the account limit and resubmit",
	"10013": "The phone number is not registered to this messaging account",
	"10015": "The registry rejected a request field. Review the organization details",
	"10016": "The EIN does not match the registered organization name",
	"10017": "A brand with this EIN is already registered",
}

var statusMessages = map[int]string{
	http.StatusUnauthorized:        "Registry authentication failed. Check the configured API key",
	http.StatusForbidden:           "The registry account does not have permission for 10DLC registration",
	http.StatusUnprocessableEntity: "The registry rejected the submitted data as invalid",
	http.StatusTooManyRequests:     "The registry rate limit was exceeded. The request will be retried later",
}

type errorBody struct {
	Errors []errorItem `json:"errors"`
}

type errorItem struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (b errorBody) first() errorItem {
	if len(b.Errors) == 0 {
		return errorItem{}
	}
	return b.Errors[0]
}

func registryError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(registryTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func registryWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return registryError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(registryTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func registryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryAuth:
		return core.ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return core.ServiceErrorPermissionDenied
	case goerrors.CategoryNotFound:
		return core.ServiceErrorNotFound
	case goerrors.CategoryRateLimit:
		return core.ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return core.ServiceErrorRegistryFailed
	default:
		return core.ServiceErrorInternal
	}
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusUnprocessableEntity:
		return goerrors.CategoryValidation
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

// responseError builds the error for a non-2xx registry response.
func responseError(operation string, status int, body errorBody) error {
	item := body.first()
	message := strings.TrimSpace(item.Detail)
	if message == "" {
		message = strings.TrimSpace(item.Title)
	}
	if message == "" {
		message = fmt.Sprintf("registry: %s failed with status %d", operation, status)
	}
	metadata := map[string]any{
		metaStatusCode: status,
		metaOperation:  operation,
	}
	if code := strings.TrimSpace(item.Code); code != "" {
		metadata[metaRegistryCode] = code
	}
	return registryError(message, statusCategory(status), status, metadata)
}

func transportFailure(operation string, err error) error {
	return registryWrapError(err, goerrors.CategoryExternal, "registry: "+operation+" request failed", http.StatusBadGateway, map[string]any{
		metaOperation: operation,
		metaTransport: true,
	})
}

// IsRetryable reports whether a registry failure may succeed on retry:
// rate limiting, 5xx responses, timeouts and transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return true
	}
	if transport, _ := richErr.Metadata[metaTransport].(bool); transport {
		return true
	}
	status := richErr.Code
	if value, ok := richErr.Metadata[metaStatusCode].(int); ok {
		status = value
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// TranslateError turns a registry failure into an operator-actionable
// reason: known registry codes first, then HTTP status classes, then the
// raw message.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return strings.TrimSpace(err.Error())
	}
	if code, _ := richErr.Metadata[metaRegistryCode].(string); code != "" {
		if message, ok := codeMessages[code]; ok {
			return message
		}
	}
	status := richErr.Code
	if value, ok := richErr.Metadata[metaStatusCode].(int); ok {
		status = value
	}
	if message, ok := statusMessages[status]; ok {
		if status == http.StatusUnprocessableEntity && strings.TrimSpace(richErr.Message) != "" {
			return message + ": " + strings.TrimSpace(richErr.Message)
		}
		return message
	}
	if message := strings.TrimSpace(richErr.Message); message != "" {
		return message
	}
	return strings.TrimSpace(err.Error())
}

var _ core.ErrorTranslator = TranslateError
