package gateway

import (
	"errors"
	"testing"
)

func TestHMACVerifier_RoundTrip(t *testing.T) {
	v := NewHMACVerifier("secret")
	body := []byte(`{"hello":"world"}`)

	if err := v.Verify(body, v.Sign(body)); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestHMACVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier("secret")
	body := []byte(`{"hello":"world"}`)

	cases := []struct {
		name      string
		body      []byte
		signature string
	}{
		{"empty signature", body, ""},
		{"garbage signature", body, "not-a-signature"},
		{"wrong secret", body, NewHMACVerifier("other").Sign(body)},
		{"tampered body", []byte(`{"hello":"tampered"}`), v.Sign(body)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(tc.body, tc.signature)
			if !errors.Is(err, ErrBadSignature) {
				t.Fatalf("expected ErrBadSignature, got %v", err)
			}
		})
	}
}

func TestNoopVerifier_AcceptsAnything(t *testing.T) {
	if err := (NoopVerifier{}).Verify([]byte("whatever"), ""); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
