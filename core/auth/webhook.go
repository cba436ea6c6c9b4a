package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	eventUserCreated = "user.created"
	eventUserUpdated = "user.updated"
	eventUserDeleted = "user.deleted"
)

type clerkEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type clerkUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
	Emails    []struct {
		Address string `json:"email_address"`
	} `json:"email_addresses"`
}

func (cu clerkUser) profile() user.UserUp {
	up := user.UserUp{
		ID:       cu.ID,
		Name:     strings.TrimSpace(cu.FirstName + " " + cu.LastName),
		ImageURL: cu.ImageURL,
	}
	if len(cu.Emails) > 0 {
		up.Email = cu.Emails[0].Address
	}
	return up.WithDefaults()
}

// HandleClerkWebhook mirrors the identity provider's user lifecycle into the
// users table.
func HandleClerkWebhook(db *sqlx.DB, wh *svix.Webhook, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := web.ReadRaw(w, r)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		if err := wh.Verify(b, r.Header); err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot verify identity event: %w", err))
		}

		var evt clerkEvent
		if err := json.Unmarshal(b, &evt); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode identity event: %w", err))
		}

		switch evt.Type {
		case eventUserCreated, eventUserUpdated, eventUserDeleted:
		default:
			log.WithField("event_type", evt.Type).Debug("identity event ignored")
			return web.Respond(ctx, w, map[string]bool{"received": true}, http.StatusOK)
		}

		var cu clerkUser
		if err := json.Unmarshal(evt.Data, &cu); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode identity user: %w", err))
		}
		if cu.ID == "" {
			return weberr.BadRequest(errors.New("identity event carries no user id"))
		}

		entry := log.WithFields(logrus.Fields{"event_type": evt.Type, "user_id": cu.ID})
		now := time.Now().UTC()

		switch evt.Type {
		case eventUserCreated:
			if err := user.Upsert(ctx, db, cu.profile(), now); err != nil {
				return fmt.Errorf("creating user[%s]: %w", cu.ID, err)
			}

		case eventUserUpdated:
			err := user.Update(ctx, db, cu.profile(), now)
			if errors.Is(err, database.ErrDBNotFound) {
				err = user.Upsert(ctx, db, cu.profile(), now)
			}
			if err != nil {
				return fmt.Errorf("updating user[%s]: %w", cu.ID, err)
			}

		case eventUserDeleted:
			if err := user.Delete(ctx, db, cu.ID); err != nil {
				return fmt.Errorf("deleting user[%s]: %w", cu.ID, err)
			}
		}

		entry.Info("identity event applied")
		return web.Respond(ctx, w, map[string]bool{"received": true}, http.StatusOK)
	}
}
