package port

import (
	"context"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

// ProtocolEngine is the external OAuth2/OIDC engine. Once a journey is
// complete the engine consumes the enriched identity claims and produces the
// redirect back to the client; token issuance, signatures, PKCE, and
// scope/claim mapping all live behind this port.
type ProtocolEngine interface {
	Complete(ctx context.Context, request domain.AuthorizationRequest, claims domain.IdentityClaims) (redirectURL string, err error)
}
