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
	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
)

func paypalCheckout(ctx context.Context, pp *paypal.Client, set Settings, c course.Course, p purchase.Purchase) (string, string, error) {
	currency := strings.ToUpper(p.Currency)
	value := purchase.Major(p.Amount, p.Currency)

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: p.ID,
		CustomID:    p.ID,
		Description: c.Title,

		Items: []paypal.Item{{
			Quantity: "1",
			Name:     c.Title,
			SKU:      c.ID,

			UnitAmount: &paypal.Money{
				Currency: currency,
				Value:    value,
			},
		}},

		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    value,

			Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
				Currency: currency,
				Value:    value,
			}},
		},
	}}

	app := &paypal.ApplicationContext{
		ReturnURL: set.SuccessURL,
		CancelURL: set.cancelURL(c.ID),
	}

	ord, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, app)
	if err != nil {
		return "", "", fmt.Errorf("creating paypal order: %w", err)
	}

	for _, l := range ord.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return ord.ID, l.Href, nil
		}
	}
	return "", "", fmt.Errorf("paypal order[%s] has no approval link", ord.ID)
}

// HandlePaypalCapture captures an approved PayPal order of the caller and
// fulfills its purchase.
func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if _, err := claims.Get(ctx); err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orderID := web.Param(r, "orderId")
		p, err := purchase.FetchByProviderRef(ctx, db, purchase.ProviderPaypal, orderID)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(fmt.Errorf("no purchase bound to paypal order[%s]", orderID))
			}
			return fmt.Errorf("fetching purchase of paypal order[%s]: %w", orderID, err)
		}
		if !claims.IsUser(ctx, p.UserID) {
			return weberr.Forbidden(fmt.Errorf("paypal order[%s] belongs to user[%s]", orderID, p.UserID))
		}

		if p.Status != purchase.Completed {
			resp, err := pp.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
			if err != nil {
				return weberr.Upstream(fmt.Errorf("capturing paypal order[%s]: %w", orderID, err))
			}
			if resp.Status != "COMPLETED" {
				if _, ferr := purchase.Fail(ctx, db, p.ID, time.Now().UTC()); ferr != nil {
					log.WithError(ferr).WithField("purchase_id", p.ID).Warn("marking purchase failed")
				}
				err := fmt.Errorf("paypal order[%s] captured with status %s", orderID, resp.Status)
				return weberr.NewError(err, err.Error(), http.StatusPaymentRequired)
			}
		}

		p, err = enrollment.Fulfill(ctx, db, enrollment.Payment{
			PurchaseID:  p.ID,
			Provider:    purchase.ProviderPaypal,
			ProviderRef: orderID,
			Currency:    p.Currency,
		}, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("the order was paid but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
