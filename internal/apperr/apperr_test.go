package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfUnwrapsChains(t *testing.T) {
	base := NotFound("file %s", "/a.md")
	wrapped := fmt.Errorf("resolve: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("KindOf() = %q, want %q", got, KindNotFound)
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Fatal("IsKind() = false, want true")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("expected plain errors to classify as internal")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindInvalidKind:     http.StatusBadRequest,
		KindAuthentication:  http.StatusUnauthorized,
		KindInvalidToken:    http.StatusUnauthorized,
		KindSessionExpired:  http.StatusUnauthorized,
		KindAuthorization:   http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindAlreadyExists:   http.StatusConflict,
		KindConflict:        http.StatusConflict,
		KindStorage:         http.StatusBadGateway,
		KindProviderTimeout: http.StatusBadGateway,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("HTTPStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestProviderKinds(t *testing.T) {
	for _, k := range []Kind{KindProviderTimeout, KindProviderRateLimited, KindProviderProtocol, KindProviderUnavailable} {
		if !k.IsProvider() {
			t.Fatalf("expected %q to be a provider kind", k)
		}
	}
	if KindConflict.IsProvider() {
		t.Fatal("conflict must not classify as provider")
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("disk full")
	err := Storage("write blob", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Code() != "storage" {
		t.Fatalf("Code() = %q, want %q", err.Code(), "storage")
	}
}
