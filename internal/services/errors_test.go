package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"dealsync/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "backend", "create note", "missing deal reference", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("validation errors must not be retryable")
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "upload", "transfer", "", errors.New("boom"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("transient errors must be retryable")
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := services.Classify(context.Canceled); !errors.Is(got, services.ErrCanceled) {
		t.Fatalf("expected canceled classification, got %v", got)
	}
	if got := services.Classify(context.DeadlineExceeded); !errors.Is(got, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", got)
	}
}

func TestClassifyURLError(t *testing.T) {
	urlErr := &url.Error{Op: "Put", URL: "https://example.com", Err: errors.New("connection refused")}
	if got := services.Classify(urlErr); !errors.Is(got, services.ErrNetwork) {
		t.Fatalf("expected network classification, got %v", got)
	}
}

func TestClassifyPassesThroughMarkedErrors(t *testing.T) {
	marked := fmt.Errorf("%w: session expired", services.ErrAuth)
	if got := services.Classify(marked); !errors.Is(got, services.ErrAuth) {
		t.Fatalf("expected auth marker preserved, got %v", got)
	}
}

func TestKindNames(t *testing.T) {
	cases := map[string]error{
		"network":    services.ErrNetwork,
		"timeout":    services.ErrTimeout,
		"auth":       services.ErrAuth,
		"validation": services.ErrValidation,
		"canceled":   services.ErrCanceled,
		"transient":  errors.New("anything"),
	}
	for want, err := range cases {
		if got := services.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if services.Kind(nil) != "" {
		t.Fatal("Kind(nil) should be empty")
	}
}
