package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/voltsight/twin-gateway/internal/models"
	"github.com/voltsight/twin-gateway/internal/utils"
)

// TokenVerifier checks an identity-provider ID token and returns the caller behind it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (models.Identity, error)
}

// ErrNoToken is returned when the Authorization header carries no bearer token.
var ErrNoToken = errors.New("no bearer token")

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrNoToken
	}
	return token, nil
}

// Authenticate resolves the caller from an Authorization header. It fails with
// KindUnauthenticated when no token is present and KindForbidden when the verifier rejects it.
func Authenticate(ctx context.Context, verifier TokenVerifier, header string) (models.Identity, error) {
	const op = "auth.Authenticate"

	token, err := BearerToken(header)
	if err != nil {
		return models.Identity{}, utils.NewKindError(utils.KindUnauthenticated, op, "missing bearer token", err)
	}
	if verifier == nil {
		return models.Identity{}, utils.NewKindError(utils.KindForbidden, op, "no token verifier configured", nil)
	}
	identity, err := verifier.VerifyIDToken(ctx, token)
	if err != nil {
		return models.Identity{}, utils.NewKindError(utils.KindForbidden, op, "token rejected", err)
	}
	if identity.UID == "" {
		return models.Identity{}, utils.NewKindError(utils.KindForbidden, op, "token has no subject", nil)
	}
	return identity, nil
}

// FirebaseVerifier verifies Firebase ID tokens with the Admin SDK.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier initialises the Admin SDK from a service-account credentials file.
func NewFirebaseVerifier(ctx context.Context, credentialsFile, projectID string) (*FirebaseVerifier, error) {
	if credentialsFile == "" {
		return nil, errors.New("firebase credentials file is required")
	}
	var appCfg *firebase.Config
	if projectID != "" {
		appCfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, appCfg, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyIDToken checks signature, expiry, audience and issuer of token.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, token string) (models.Identity, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	identity := models.Identity{UID: decoded.UID}
	if email, ok := decoded.Claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}
