package protocol

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

// DevEngine is a development stand-in for the external OAuth2/OIDC protocol
// engine. It signs the completed journey's claims as a compact JWT and
// redirects to the client's redirect URI. The real engine handles token
// issuance, PKCE, and scope mapping; this adapter exists so the completion
// hand-off can be exercised end to end without it.
type DevEngine struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDevEngine constructs the stand-in engine.
func NewDevEngine(signingKey, issuer string, log *zap.Logger) *DevEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &DevEngine{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   5 * time.Minute,
		logger:     log,
		now:        time.Now,
	}
}

type claimsToken struct {
	Email              string `json:"email"`
	EmailVerified      bool   `json:"email_verified"`
	GivenName          string `json:"given_name,omitempty"`
	FamilyName         string `json:"family_name,omitempty"`
	BirthDate          string `json:"birthdate,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	jwt.RegisteredClaims
}

// Complete signs the claims and builds the redirect back to the client.
func (e *DevEngine) Complete(_ context.Context, request domain.AuthorizationRequest, claims domain.IdentityClaims) (string, error) {
	now := e.now().UTC()

	token := claimsToken{
		Email:              claims.Email,
		EmailVerified:      claims.EmailVerified,
		GivenName:          claims.GivenName,
		FamilyName:         claims.FamilyName,
		RegistrationNumber: claims.RegistrationNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   claims.Subject,
			Audience:  jwt.ClaimStrings{request.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	if claims.BirthDate != nil {
		token.BirthDate = claims.BirthDate.Format("2006-01-02")
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, token).SignedString(e.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign identity claims: %w", err)
	}

	redirect, err := url.Parse(request.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}

	query := redirect.Query()
	query.Set("id_token", signed)
	redirect.RawQuery = query.Encode()

	e.logger.Info("authorization completed",
		zap.String("client_id", request.ClientID),
		zap.String("subject", claims.Subject),
	)

	return redirect.String(), nil
}

var _ port.ProtocolEngine = (*DevEngine)(nil)
