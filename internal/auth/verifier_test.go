package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/utils"
)

type verifierStub struct {
	calls    int
	identity models.Identity
	err      error
}

func (v *verifierStub) VerifyIDToken(_ context.Context, token string) (models.Identity, error) {
	v.calls++
	return v.identity, v.err
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc.def.ghi": true,
		"Bearer  abc":        true,
		"":                   false,
		"Bearer ":            false,
		"bearer abc":         false,
		"Basic dXNlcjpwYXNz": false,
		"Bearer a b":         false,
	}
	for header, ok := range cases {
		_, err := BearerToken(header)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", header, err)
		}
		if !ok && !errors.Is(err, ErrNoToken) {
			t.Fatalf("%q: expected ErrNoToken, got %v", header, err)
		}
	}
}

func TestAuthenticateMissingTokenSkipsVerifier(t *testing.T) {
	stub := &verifierStub{identity: models.Identity{UID: "u1"}}
	_, err := Authenticate(context.Background(), stub, "")
	if utils.KindOf(err) != utils.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("verifier must not be called without a token")
	}
}

func TestAuthenticateRejectedToken(t *testing.T) {
	stub := &verifierStub{err: errors.New("token expired")}
	_, err := Authenticate(context.Background(), stub, "Bearer stale")
	if utils.KindOf(err) != utils.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	stub := &verifierStub{identity: models.Identity{UID: "u1", Email: "a@example.com"}}
	identity, err := Authenticate(context.Background(), stub, "Bearer good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := WithIdentity(context.Background(), identity)
	got, ok := IdentityFrom(ctx)
	if !ok || got.UID != "u1" {
		t.Fatalf("identity not propagated: %+v", got)
	}
}

func TestAuthenticateEmptySubject(t *testing.T) {
	_, err := Authenticate(context.Background(), &verifierStub{}, "Bearer good")
	if utils.KindOf(err) != utils.KindForbidden {
		t.Fatalf("expected forbidden for empty uid, got %v", err)
	}
}
