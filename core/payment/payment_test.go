package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := HandleStripeWebhook(nil, "whsec_expected", log)

	evt := stripe.Event{
		ID:         "evt_1",
		APIVersion: stripe.APIVersion,
		Type:       eventSessionCompleted,
		Data:       &stripe.EventData{Raw: json.RawMessage(`{"id":"cs_1"}`)},
	}
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})

	tests := []struct {
		name string
		sig  string
	}{
		{name: "missing signature"},
		{name: "wrong secret", sig: signed.Header},
		{name: "garbage", sig: "t=1,v1=deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/stripe", bytes.NewReader(b))
			if tt.sig != "" {
				r.Header.Set("Stripe-Signature", tt.sig)
			}
			w := httptest.NewRecorder()

			err := h(context.Background(), w, r)
			if err == nil {
				t.Fatal("expected the event to be rejected")
			}
			_, status, ok := weberr.Response(err)
			if !ok || status != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d (%v)", status, err)
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	c := course.Course{ID: "c1", Title: "Go in practice"}
	p := purchase.Purchase{ID: "p1", UserID: "user_1", CourseID: "c1"}

	md := metadata(c, p)
	exp := map[string]string{
		"purchaseId":  "p1",
		"userId":      "user_1",
		"courseId":    "c1",
		"courseTitle": "Go in practice",
	}
	if diff := cmp.Diff(exp, md); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	pay := paymentFromMetadata(md, "cs_1", "usd")
	if pay.PurchaseID != "p1" || pay.UserID != "user_1" || pay.CourseID != "c1" || pay.ProviderRef != "cs_1" {
		t.Errorf("unexpected payment %+v", pay)
	}
}

func TestCancelURL(t *testing.T) {
	set := Settings{CancelURL: "http://localhost:5173/course/{courseId}"}
	if got := set.cancelURL("abc"); got != "http://localhost:5173/course/abc" {
		t.Errorf("unexpected cancel url %s", got)
	}
}
