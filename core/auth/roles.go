package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkuser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/claims"
	"github.com/sirupsen/logrus"
)

// RoleGranter grants roles held by the identity provider.
type RoleGranter interface {
	GrantEducator(ctx context.Context, userID string) error
}

// Roles stores roles in the identity provider's public user metadata, which
// session tokens expose as public_metadata.role.
type Roles struct {
	users *clerkuser.Client
}

// NewRoles calls the identity provider's backend API with secretKey. An empty
// apiURL keeps the provider's default endpoint.
func NewRoles(secretKey, apiURL string) *Roles {
	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(secretKey)
	if apiURL != "" {
		cfg.URL = clerk.String(apiURL)
	}
	return &Roles{users: clerkuser.NewClient(cfg)}
}

func (r *Roles) GrantEducator(ctx context.Context, userID string) error {
	b, err := json.Marshal(map[string]string{"role": claims.RoleEducator})
	if err != nil {
		return err
	}
	md := json.RawMessage(b)

	if _, err := r.users.UpdateMetadata(ctx, userID, &clerkuser.UpdateMetadataParams{PublicMetadata: &md}); err != nil {
		return fmt.Errorf("updating metadata of user[%s]: %w", userID, err)
	}
	return nil
}

// HandleUpdateRole makes the caller an educator. The new role shows up in
// the next session token the identity provider issues.
func HandleUpdateRole(roles RoleGranter, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if clm.Role != claims.RoleEducator {
			if err := roles.GrantEducator(ctx, clm.UserID); err != nil {
				return weberr.Upstream(err)
			}
			log.WithField("user_id", clm.UserID).Info("educator role granted")
		}

		resp := struct {
			Role    string `json:"role"`
			Message string `json:"message"`
		}{
			Role:    claims.RoleEducator,
			Message: "You can publish a course now",
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
