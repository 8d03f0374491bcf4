package provider

import (
	"errors"
	"testing"
)

func TestErrorWrapsAndUnwraps(t *testing.T) {
	base := errors.New("connection refused")
	err := NewError("asr", ErrKindProviderUnavailable, base)

	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to find the wrapped base error")
	}

	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected AsProviderError to succeed")
	}
	if pe.Kind != ErrKindProviderUnavailable {
		t.Fatalf("got kind %v, want %v", pe.Kind, ErrKindProviderUnavailable)
	}
	if pe.Stage != "asr" {
		t.Fatalf("got stage %q, want asr", pe.Stage)
	}
}

func TestErrKindString(t *testing.T) {
	cases := map[ErrKind]string{
		ErrKindConfigTimeout:       "config_timeout",
		ErrKindUnsupportedLanguage: "unsupported_language",
		ErrKindProviderUnavailable: "provider_unavailable",
		ErrKindProviderRPC:         "provider_rpc_error",
		ErrKindProviderTimeout:     "provider_timeout",
		ErrKindClientDisconnect:    "client_disconnect",
		ErrKindInternal:            "internal_error",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(kind), got, want)
		}
	}
}
