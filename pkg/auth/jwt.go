package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// fallbackRolesClaim is consulted when the configured roles path resolves
// to nothing. Matches the Keycloak default claim layout.
const fallbackRolesClaim = "realm_access.roles"

// JWTProvider verifies bearer tokens and extracts identity from their
// claims.
type JWTProvider struct {
	cfg    config.AuthConfig
	key    interface{}
	method string
}

// NewJWTProvider creates a jwt-mode provider from the auth configuration.
// HS algorithms use the shared secret; RS and ES algorithms use the PEM
// public key.
func NewJWTProvider(cfg config.AuthConfig) (*JWTProvider, error) {
	alg := strings.ToUpper(cfg.JWTAlgorithm)
	p := &JWTProvider{cfg: cfg, method: alg}

	switch {
	case alg == "HS256" || alg == "HS384" || alg == "HS512":
		if cfg.JWTSecret == "" {
			return nil, errdefs.New(errdefs.KindConfiguration, "jwt HS mode requires a secret")
		}
		p.key = []byte(cfg.JWTSecret)
	case strings.HasPrefix(alg, "RS"):
		if cfg.JWTPublicKey == "" {
			return nil, errdefs.New(errdefs.KindConfiguration, "jwt RS mode requires a public key")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindConfiguration, "failed to parse RSA public key", err)
		}
		p.key = key
	case strings.HasPrefix(alg, "ES"):
		if cfg.JWTPublicKey == "" {
			return nil, errdefs.New(errdefs.KindConfiguration, "jwt ES mode requires a public key")
		}
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindConfiguration, "failed to parse EC public key", err)
		}
		p.key = key
	default:
		return nil, errdefs.Newf(errdefs.KindConfiguration, "unsupported JWT algorithm: %q", cfg.JWTAlgorithm)
	}

	return p, nil
}

// Mode returns the jwt mode.
func (p *JWTProvider) Mode() config.AuthMode {
	return config.AuthJWT
}

// HasValidAuth reports whether a bearer token is extractable.
func (p *JWTProvider) HasValidAuth(r *http.Request) bool {
	return extractBearer(r) != ""
}

// ParseRequest verifies the token signature, issuer, audience, and expiry,
// then extracts the identity from the configured claim paths.
func (p *JWTProvider) ParseRequest(r *http.Request) (*types.Identity, error) {
	raw := extractBearer(r)
	if raw == "" {
		return nil, errdefs.New(errdefs.KindAuthentication, "missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method}),
		jwt.WithExpirationRequired(),
	}
	if p.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.JWTIssuer))
	}
	if p.cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.JWTAudience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return p.key, nil
	}, opts...)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindAuthentication, "invalid token", err)
	}

	userID, _ := claimPath(claims, p.cfg.JWTUserIDClaim).(string)
	if userID == "" {
		return nil, errdefs.Newf(errdefs.KindAuthentication, "token has no %q claim", p.cfg.JWTUserIDClaim)
	}

	rolesValue := claimPath(claims, p.cfg.JWTRolesClaim)
	if rolesValue == nil && p.cfg.JWTRolesClaim != fallbackRolesClaim {
		rolesValue = claimPath(claims, fallbackRolesClaim)
	}

	return &types.Identity{ID: userID, Roles: rolesFromClaim(rolesValue)}, nil
}

func extractBearer(r *http.Request) string {
	header := headerValue(r, "Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// claimPath walks a dotted path through nested claim maps.
func claimPath(claims map[string]interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	var current interface{} = map[string]interface{}(claims)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

func rolesFromClaim(value interface{}) []string {
	switch v := value.(type) {
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case []string:
		return v
	case string:
		return splitRoles(v)
	default:
		return nil
	}
}
