package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/claims"
)

// Verifier checks a session token issued by the identity provider.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.IDToken, error)
}

// NewVerifier trusts tokens signed by the keys published at jwksURL and
// issued by issuer. Session tokens carry no audience, so none is checked.
func NewVerifier(ctx context.Context, issuer, jwksURL string) *oidc.IDTokenVerifier {
	keys := oidc.NewRemoteKeySet(ctx, jwksURL)
	return oidc.NewVerifier(issuer, keys, &oidc.Config{SkipClientIDCheck: true})
}

type tokenClaims struct {
	Role     string `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	ImageURL string `json:"image_url"`
	Public   struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

// Parse verifies raw and extracts the caller's identity.
func Parse(ctx context.Context, v Verifier, raw string) (claims.Claims, error) {
	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return claims.Claims{}, fmt.Errorf("verifying token: %w", err)
	}

	var tc tokenClaims
	if err := tok.Claims(&tc); err != nil {
		return claims.Claims{}, fmt.Errorf("decoding token claims: %w", err)
	}
	if tok.Subject == "" {
		return claims.Claims{}, errors.New("token has no subject")
	}

	role := tc.Role
	if role == "" {
		role = tc.Public.Role
	}

	return claims.Claims{
		UserID:   tok.Subject,
		Role:     role,
		Name:     tc.Name,
		Email:    tc.Email,
		ImageURL: tc.ImageURL,
	}, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Authenticate rejects requests without a valid bearer session token and
// stores the caller's claims in the request context.
func Authenticate(v Verifier) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			raw, ok := bearer(r)
			if !ok {
				return weberr.NotAuthorized(errors.New("missing bearer token"))
			}

			clm, err := Parse(ctx, v, raw)
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Educator only lets through callers holding the educator role. It must run
// after Authenticate.
func Educator() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if _, err := claims.Get(ctx); err != nil {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			if !claims.IsEducator(ctx) {
				return weberr.Forbidden(errors.New("educator role required"))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
