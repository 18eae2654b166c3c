package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestServiceErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		category goerrors.Category
		status   int
	}{
		{fmt.Errorf("wrap: %w", ErrRecordNotFound), ServiceErrorNotFound, goerrors.CategoryNotFound, http.StatusNotFound},
		{ErrVersionConflict, ServiceErrorConflict, goerrors.CategoryConflict, http.StatusConflict},
		{fmt.Errorf("%w: tenant t1", ErrBrandNotRegistered), ServiceErrorOperationFailed, goerrors.CategoryOperation, http.StatusInternalServerError},
		{stderrors.New("core: tenant id is required"), ServiceErrorBadInput, goerrors.CategoryBadInput, http.StatusBadRequest},
		{stderrors.New("registry: rate limit exceeded"), ServiceErrorRateLimited, goerrors.CategoryRateLimit, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		mapped := serviceErrorMapper(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%v: expected category %q, got %q", tc.err, tc.category, mapped.Category)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
}

func TestServiceErrorMapper_KeepsRichErrors(t *testing.T) {
	rich := goerrors.New("registry unavailable", goerrors.CategoryExternal)
	mapped := serviceErrorMapper(rich)
	if mapped.TextCode != ServiceErrorRegistryFailed || mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected registry failure envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}
}

func TestServiceMethods_MapErrorsToStableServiceCodes(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.service.RegisterBrand(context.Background(), RegisterBrandRequest{Profile: validProfile()})
	if err == nil {
		t.Fatalf("expected tenant validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ServiceErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}
}

func TestDefaultErrorTranslator(t *testing.T) {
	if got := defaultErrorTranslator(goerrors.New("Rate limit exceeded", goerrors.CategoryRateLimit)); got != "Rate limit exceeded" {
		t.Fatalf("expected rich message, got %q", got)
	}
	if got := defaultErrorTranslator(stderrors.New(" raw failure ")); got != "raw failure" {
		t.Fatalf("expected raw message, got %q", got)
	}
	if got := defaultErrorTranslator(nil); got != "" {
		t.Fatalf("expected empty translation for nil, got %q", got)
	}
}
