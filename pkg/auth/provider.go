package auth

import (
	"net/http"
	"strings"

	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// Provider identifies the caller of an incoming request. Implementations
// exist for the gateway, jwt, and none modes.
type Provider interface {
	// ParseRequest extracts the caller identity. It returns an
	// authentication error when the request carries no usable identity.
	ParseRequest(r *http.Request) (*types.Identity, error)

	// HasValidAuth reports whether the request carries a usable identity
	// without fully verifying it.
	HasValidAuth(r *http.Request) bool

	// Mode returns the provider's auth mode.
	Mode() config.AuthMode
}

// New constructs the provider selected by the configuration: the disabled
// escape hatch forces none, then the explicit mode, then environment, then
// the gateway default (precedence is resolved by config.EffectiveAuthMode).
func New(cfg *config.Config) (Provider, error) {
	switch cfg.EffectiveAuthMode() {
	case config.AuthNone:
		return NewNoneProvider(cfg.Auth.AnonymousUserID), nil
	case config.AuthJWT:
		return NewJWTProvider(cfg.Auth)
	case config.AuthGateway:
		return NewGatewayProvider(), nil
	default:
		return nil, errdefs.Newf(errdefs.KindConfiguration, "unknown auth mode: %q", cfg.Auth.Mode)
	}
}

// IsAdmin reports whether the identity carries the configured admin role.
func IsAdmin(id *types.Identity, adminRoleName string) bool {
	if id == nil || adminRoleName == "" {
		return false
	}
	return id.HasRole(adminRoleName)
}

// headerValue returns the first value of a header, collapsing array values
// to their first element.
func headerValue(r *http.Request, name string) string {
	values := r.Header.Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// splitRoles parses a comma-separated role list, trimming whitespace and
// dropping empties.
func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if role := strings.TrimSpace(p); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
