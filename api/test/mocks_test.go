package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/edemy/api/web"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

// checkoutSession is what the Stripe mock saw for one created session.
type checkoutSession struct {
	ID         string
	UnitAmount string
	Currency   string
	Metadata   map[string]string
	IntentMeta map[string]string
}

type mockStripe struct {
	mu       sync.Mutex
	sessions []checkoutSession
}

func (m *mockStripe) last() checkoutSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return checkoutSession{}
	}
	return m.sessions[len(m.sessions)-1]
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	m, _ := v.(map[string]any)
	for k, v := range m {
		out[k], _ = v.(string)
	}
	return out
}

func (m *mockStripe) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		lines, _ := params["line_items"].(map[string]any)
		if len(lines) != 1 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var s checkoutSession
		for _, li := range lines {
			it := li.(map[string]any)
			if it["quantity"] != "1" {
				web.Respond(context.Background(), w, nil, 400)
				return
			}
			pd := it["price_data"].(map[string]any)
			s.UnitAmount, _ = pd["unit_amount"].(string)
			s.Currency, _ = pd["currency"].(string)
		}
		s.Metadata = stringMap(params["metadata"])
		if pid, ok := params["payment_intent_data"].(map[string]any); ok {
			s.IntentMeta = stringMap(pid["metadata"])
		}

		m.mu.Lock()
		s.ID = fmt.Sprintf("cs_test_%d", len(m.sessions)+1)
		m.sessions = append(m.sessions, s)
		m.mu.Unlock()

		sess := map[string]any{
			"id":     s.ID,
			"object": "checkout.session",
			"url":    "https://checkout.stripe.test/" + s.ID,
		}
		web.Respond(context.Background(), w, sess, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", checkout).Methods("POST")
	return r
}

type mockPaypal struct {
	mu       sync.Mutex
	orders   int
	amounts  map[string]string
	declined map[string]bool
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := map[string]any{
			"access_token": "A21AAtoken",
			"token_type":   "Bearer",
			"expires_in":   32400,
		}
		web.Respond(context.Background(), w, tok, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}
		if len(pu.Units) != 1 || pu.Units[0].Amount == nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		m.orders++
		id := fmt.Sprintf("PAYPAL%04d", m.orders)
		if m.amounts == nil {
			m.amounts = map[string]string{}
		}
		m.amounts[id] = pu.Units[0].Amount.Value
		m.mu.Unlock()

		ord := paypal.Order{
			ID:     id,
			Status: "CREATED",
			Links: []paypal.Link{
				{Href: "https://www.sandbox.paypal.test/checkoutnow?token=" + id, Rel: "approve", Method: "GET"},
			},
		}
		web.Respond(context.Background(), w, ord, 201)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		m.mu.Lock()
		declined := m.declined[id]
		m.mu.Unlock()

		status := "COMPLETED"
		if declined {
			status = "DECLINED"
		}
		web.Respond(context.Background(), w, map[string]string{"id": id, "status": status}, 201)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

func (m *mockPaypal) amount(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.amounts[id]
}

// mockIdentity stands in for the identity provider's backend API.
type mockIdentity struct {
	mu    sync.Mutex
	roles map[string]string
}

func (m *mockIdentity) handle() http.Handler {
	metadata := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var body struct {
			Public map[string]string `json:"public_metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		if m.roles == nil {
			m.roles = map[string]string{}
		}
		m.roles[id] = body.Public["role"]
		m.mu.Unlock()

		web.Respond(context.Background(), w, map[string]any{"object": "user", "id": id, "public_metadata": body.Public}, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/users/{id}/metadata", metadata).Methods("PATCH")
	return r
}

func (m *mockIdentity) role(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[id]
}

// memStore keeps uploaded media in memory.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Upload(ctx context.Context, key string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return "https://media.edemy.test/" + key, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[strings.TrimPrefix(url, "https://media.edemy.test/")]
	return ok
}
