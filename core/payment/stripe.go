package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/enrollment"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	eventSessionCompleted     = "checkout.session.completed"
	eventSessionAsyncSucceed  = "checkout.session.async_payment_succeeded"
	eventSessionAsyncFailed   = "checkout.session.async_payment_failed"
	eventSessionExpired       = "checkout.session.expired"
	eventPaymentIntentSucceed = "payment_intent.succeeded"
	eventPaymentIntentFailed  = "payment_intent.payment_failed"
)

func stripeCheckout(strp *stripecl.API, set Settings, c course.Course, p purchase.Purchase) (string, string, error) {
	md := metadata(c, p)

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(set.SuccessURL),
		CancelURL:         stripe.String(set.cancelURL(c.ID)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.ID),

		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(purchase.MinorUnits(p.Amount, p.Currency)),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(c.Title),
				},
			},
		}},

		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: md,
		},
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}

	s, err := strp.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("creating stripe session: %w", err)
	}
	return s.ID, s.URL, nil
}

func paymentFromMetadata(md map[string]string, ref, currency string) enrollment.Payment {
	return enrollment.Payment{
		PurchaseID:  md[metaPurchaseID],
		UserID:      md[metaUserID],
		CourseID:    md[metaCourseID],
		Provider:    purchase.ProviderStripe,
		ProviderRef: ref,
		Currency:    currency,
	}
}

// HandleStripeWebhook reconciles purchases with the payment events sent by
// Stripe. Every verified event is acknowledged unless storage fails, so that
// Stripe does not retry events that can never succeed.
func HandleStripeWebhook(db *sqlx.DB, secret string, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := web.ReadRaw(w, r)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, secret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		seen, err := purchase.EventSeen(ctx, db, purchase.ProviderStripe, event.ID)
		if err != nil {
			return fmt.Errorf("checking stripe event[%s]: %w", event.ID, err)
		}
		if seen {
			return ack(ctx, w)
		}

		entry := log.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})
		now := time.Now().UTC()

		var pay enrollment.Payment
		switch event.Type {
		case eventSessionCompleted, eventSessionAsyncSucceed, eventSessionAsyncFailed, eventSessionExpired:
			var s stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe session: %w", err))
			}
			if s.Mode != "" && s.Mode != stripe.CheckoutSessionModePayment {
				return ack(ctx, w)
			}
			pay = paymentFromMetadata(s.Metadata, s.ID, string(s.Currency))
			if pay.PurchaseID == "" {
				pay.PurchaseID = s.ClientReferenceID
			}

			switch {
			case event.Type == eventSessionAsyncFailed || event.Type == eventSessionExpired:
				err = fail(ctx, db, pay, now, entry)
			case event.Type == eventSessionCompleted && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid:
				err = processing(ctx, db, pay, now, entry)
			default:
				err = succeed(ctx, db, pay, now, entry)
			}

		case eventPaymentIntentSucceed, eventPaymentIntentFailed:
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe payment intent: %w", err))
			}
			pay = paymentFromMetadata(pi.Metadata, "", string(pi.Currency))

			// A declined attempt leaves the checkout session open for another
			// try; the session's own failure or expiry ends the purchase.
			if event.Type == eventPaymentIntentFailed {
				entry.WithField("purchase_id", pay.PurchaseID).Info("payment attempt declined")
			} else {
				err = succeed(ctx, db, pay, now, entry)
			}

		default:
			entry.Debug("stripe event ignored")
			return ack(ctx, w)
		}
		if err != nil {
			return err
		}

		if err := purchase.RecordEvent(ctx, db, purchase.ProviderStripe, event.ID, string(event.Type), now); err != nil {
			entry.WithError(err).Warn("recording stripe event")
		}

		return ack(ctx, w)
	}
}

func ack(ctx context.Context, w http.ResponseWriter) error {
	return web.Respond(ctx, w, map[string]bool{"received": true}, http.StatusOK)
}

func succeed(ctx context.Context, db *sqlx.DB, pay enrollment.Payment, now time.Time, log logrus.FieldLogger) error {
	p, err := enrollment.Fulfill(ctx, db, pay, now)
	if err != nil {
		if errors.Is(err, enrollment.ErrUnresolvable) {
			log.WithError(err).Error("payment could not be fulfilled")
			return nil
		}
		return fmt.Errorf("fulfilling payment: %w", err)
	}

	log.WithFields(logrus.Fields{
		"purchase_id": p.ID,
		"user_id":     p.UserID,
		"course_id":   p.CourseID,
	}).Info("purchase completed")
	return nil
}

func fail(ctx context.Context, db *sqlx.DB, pay enrollment.Payment, now time.Time, log logrus.FieldLogger) error {
	ok, err := enrollment.Fail(ctx, db, pay, now)
	if err != nil {
		return fmt.Errorf("failing purchase: %w", err)
	}
	log.WithField("purchase_id", pay.PurchaseID).WithField("updated", ok).Info("payment failed")
	return nil
}

func processing(ctx context.Context, db *sqlx.DB, pay enrollment.Payment, now time.Time, log logrus.FieldLogger) error {
	if pay.PurchaseID == "" {
		return nil
	}
	if err := validate.CheckID(pay.PurchaseID); err != nil {
		log.WithField("purchase_id", pay.PurchaseID).Warn("awaiting payment of an unknown purchase")
		return nil
	}
	if _, err := purchase.MarkProcessing(ctx, db, pay.PurchaseID, now); err != nil {
		return fmt.Errorf("marking purchase[%s] processing: %w", pay.PurchaseID, err)
	}
	log.WithField("purchase_id", pay.PurchaseID).Info("awaiting asynchronous payment")
	return nil
}
