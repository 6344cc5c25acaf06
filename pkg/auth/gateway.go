package auth

import (
	"net/http"

	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

const (
	headerUserID    = "x-user-id"
	headerUserRoles = "x-user-roles"
)

// GatewayProvider trusts identity headers injected by an upstream API
// gateway.
type GatewayProvider struct{}

// NewGatewayProvider creates a gateway-mode provider.
func NewGatewayProvider() *GatewayProvider {
	return &GatewayProvider{}
}

// Mode returns the gateway mode.
func (p *GatewayProvider) Mode() config.AuthMode {
	return config.AuthGateway
}

// HasValidAuth reports whether the user id header is present.
func (p *GatewayProvider) HasValidAuth(r *http.Request) bool {
	return headerValue(r, headerUserID) != ""
}

// ParseRequest reads the gateway identity headers.
func (p *GatewayProvider) ParseRequest(r *http.Request) (*types.Identity, error) {
	id := headerValue(r, headerUserID)
	if id == "" {
		return nil, errdefs.New(errdefs.KindAuthentication, "missing x-user-id header")
	}
	return &types.Identity{
		ID:    id,
		Roles: splitRoles(headerValue(r, headerUserRoles)),
	}, nil
}
