package auth

import (
	"net/http"

	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/types"
)

// AnonymousRole is the single role carried by the anonymous sentinel.
const AnonymousRole = "anonymous"

// NoneProvider disables authentication and returns a stable anonymous
// identity for every request.
type NoneProvider struct {
	anonymousID string
}

// NewNoneProvider creates a none-mode provider with the configured
// anonymous user id.
func NewNoneProvider(anonymousID string) *NoneProvider {
	if anonymousID == "" {
		anonymousID = "anonymous"
	}
	return &NoneProvider{anonymousID: anonymousID}
}

// Mode returns the none mode.
func (p *NoneProvider) Mode() config.AuthMode {
	return config.AuthNone
}

// HasValidAuth always reports true.
func (p *NoneProvider) HasValidAuth(r *http.Request) bool {
	return true
}

// ParseRequest returns the anonymous sentinel.
func (p *NoneProvider) ParseRequest(r *http.Request) (*types.Identity, error) {
	return &types.Identity{
		ID:    p.anonymousID,
		Roles: []string{AnonymousRole},
	}, nil
}
