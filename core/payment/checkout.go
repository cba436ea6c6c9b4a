package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/claims"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/enrollment"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

// Metadata keys attached to every checkout.
const (
	metaPurchaseID  = "purchaseId"
	metaUserID      = "userId"
	metaCourseID    = "courseId"
	metaCourseTitle = "courseTitle"
)

// Settings controls how checkouts are created.
type Settings struct {
	Currency   string
	Bypass     bool
	SuccessURL string
	CancelURL  string
}

func (s Settings) cancelURL(courseID string) string {
	return strings.ReplaceAll(s.CancelURL, "{courseId}", courseID)
}

// Providers holds the payment clients. Paypal is nil when not configured.
type Providers struct {
	Stripe *stripecl.API
	Paypal *paypal.Client
}

type PurchaseRequest struct {
	CourseID string `json:"courseId" validate:"required"`
	Provider string `json:"provider" validate:"omitempty,oneof=stripe paypal"`
}

type SessionResponse struct {
	SessionURL string `json:"session_url"`
}

// HandlePurchase starts the payment of a course and returns the page where
// the caller completes it.
func HandlePurchase(db *sqlx.DB, prov Providers, set Settings, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var req PurchaseRequest
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(req); err != nil {
			return weberr.Validation(err)
		}
		if err := validate.CheckID(req.CourseID); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", req.CourseID, err))
		}
		if req.Provider == "" {
			req.Provider = purchase.ProviderStripe
		}
		if req.Provider == purchase.ProviderPaypal && prov.Paypal == nil {
			return weberr.Validation(errors.New("paypal payments are not available"))
		}

		if _, err := user.Ensure(ctx, db, user.FromClaims(clm)); err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}

		c, err := enrollment.FetchCourse(ctx, db, req.CourseID)
		if err != nil {
			return err
		}
		if !c.Published {
			return weberr.NotFound(fmt.Errorf("course[%s] not published", c.ID))
		}

		enrolled, err := enrollment.Exists(ctx, db, clm.UserID, c.ID)
		if err != nil {
			return fmt.Errorf("checking enrollment: %w", err)
		}
		if enrolled {
			return weberr.Validation(errors.New("already enrolled in this course"))
		}

		now := time.Now().UTC()

		if set.Bypass {
			_, err := enrollment.Fulfill(ctx, db, enrollment.Payment{
				UserID:   clm.UserID,
				CourseID: c.ID,
				Provider: purchase.ProviderBypass,
				Currency: set.Currency,
			}, now)
			if err != nil {
				return fmt.Errorf("enrolling without payment: %w", err)
			}
			log.WithFields(logrus.Fields{"user_id": clm.UserID, "course_id": c.ID}).Warn("payment bypassed")
			return web.Respond(ctx, w, SessionResponse{SessionURL: set.SuccessURL}, http.StatusOK)
		}

		net, err := c.Amount()
		if err != nil {
			return fmt.Errorf("pricing course[%s]: %w", c.ID, err)
		}
		q := purchase.Chargeable(net, set.Currency)
		if q.Adjusted {
			log.WithFields(logrus.Fields{
				"course_id": c.ID,
				"original":  q.Original.Decimal.String(),
				"charged":   q.Amount.String(),
				"currency":  q.Currency,
			}).Info("amount raised to the currency minimum")
		}

		p := purchase.New(validate.GenerateID(), clm.UserID, c.ID, q, purchase.Pending, req.Provider, now)
		if err := purchase.Create(ctx, db, p); err != nil {
			return fmt.Errorf("creating purchase: %w", err)
		}

		var ref, url string
		switch req.Provider {
		case purchase.ProviderPaypal:
			ref, url, err = paypalCheckout(ctx, prov.Paypal, set, c, p)
		default:
			ref, url, err = stripeCheckout(prov.Stripe, set, c, p)
		}
		if err != nil {
			if _, ferr := purchase.Fail(ctx, db, p.ID, time.Now().UTC()); ferr != nil {
				log.WithError(ferr).WithField("purchase_id", p.ID).Warn("marking purchase failed")
			}
			return weberr.Upstream(err, weberr.WithFields(logrus.Fields{"purchase_id": p.ID}))
		}

		if err := purchase.SetProviderRef(ctx, db, p.ID, req.Provider, ref, time.Now().UTC()); err != nil {
			return fmt.Errorf("binding purchase[%s] to %s checkout[%s]: %w", p.ID, req.Provider, ref, err)
		}

		return web.Respond(ctx, w, SessionResponse{SessionURL: url}, http.StatusOK)
	}
}

func metadata(c course.Course, p purchase.Purchase) map[string]string {
	return map[string]string{
		metaPurchaseID:  p.ID,
		metaUserID:      p.UserID,
		metaCourseID:    c.ID,
		metaCourseTitle: c.Title,
	}
}
