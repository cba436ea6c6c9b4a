package test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/irsalhamdi/edemy/api"
	"github.com/irsalhamdi/edemy/config"
	"github.com/irsalhamdi/edemy/core/auth"
	"github.com/irsalhamdi/edemy/core/payment"
	"github.com/irsalhamdi/edemy/database"
	"github.com/irsalhamdi/edemy/rate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	dbUser     = "postgres"
	dbPassword = "postgres"
	issuer     = "https://clerk.edemy.test"
	successURL = "http://localhost:5173/loading/my-enrollments"
)

var (
	dbHost    string
	dockerErr error
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

// run starts a single Postgres container shared by every test of the package.
// Tests are skipped when Docker is not available.
func run(m *testing.M) int {
	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		dockerErr = err
		return m.Run()
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=" + dbUser,
			"POSTGRES_PASSWORD=" + dbPassword,
			"POSTGRES_DB=postgres",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("starting postgres: %v", err)
		return 1
	}
	defer pool.Purge(res)
	_ = res.Expire(600)

	dbHost = res.GetHostPort("5432/tcp")

	pool.MaxWait = time.Minute
	err = pool.Retry(func() error {
		db, err := database.Open(dbConfig("postgres"))
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Ping()
	})
	if err != nil {
		log.Printf("waiting for postgres: %v", err)
		return 1
	}

	return m.Run()
}

func dbConfig(name string) config.DB {
	return config.DB{
		User:       dbUser,
		Password:   dbPassword,
		Host:       dbHost,
		Name:       name,
		DisableTLS: true,
	}
}

type TestEnv struct {
	*httptest.Server
	DB            *sqlx.DB
	Stripe        *mockStripe
	Paypal        *mockPaypal
	Media         *memStore
	Identity      *mockIdentity
	WebhookSecret string
	IdentityHook  *svix.Webhook

	key *rsa.PrivateKey
}

// NewTestEnv serves the API over a fresh database called name. Options adjust
// the API configuration before the server starts.
func NewTestEnv(t *testing.T, name string, opts ...func(*api.APIConfig)) (*TestEnv, error) {
	t.Helper()
	if dockerErr != nil {
		t.Skipf("docker not available: %v", dockerErr)
	}

	admin, err := database.Open(dbConfig("postgres"))
	if err != nil {
		return nil, fmt.Errorf("connecting as admin: %w", err)
	}
	defer admin.Close()
	if _, err := admin.Exec("CREATE DATABASE " + name); err != nil {
		return nil, fmt.Errorf("creating database %s: %w", name, err)
	}

	db, err := database.Open(dbConfig(name))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", name, err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating database %s: %w", name, err)
	}

	ms := &mockStripe{}
	stripeSrv := httptest.NewServer(ms.handle())
	t.Cleanup(stripeSrv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(stripeSrv.URL),
	})
	strp := &stripecl.API{}
	strp.Init("sk_test_edemy", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	mp := &mockPaypal{}
	paypalSrv := httptest.NewServer(mp.handle())
	t.Cleanup(paypalSrv.Close)

	pp, err := paypal.NewClient("client", "secret", paypalSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}
	if _, err := pp.GetAccessToken(context.Background()); err != nil {
		return nil, fmt.Errorf("getting paypal token: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(issuer, keys, &oidc.Config{SkipClientIDCheck: true})

	hook, err := svix.NewWebhook("whsec_" + base64.StdEncoding.EncodeToString([]byte(name+"-identity-secret-0123456789")))
	if err != nil {
		return nil, fmt.Errorf("building identity webhook: %w", err)
	}

	mi := &mockIdentity{}
	identitySrv := httptest.NewServer(mi.handle())
	t.Cleanup(identitySrv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger, _ := test.NewNullLogger()
	store := newMemStore()
	webhookSecret := "whsec_" + name

	cfg := api.APIConfig{
		Log:                 logger,
		DB:                  db,
		Verifier:            verifier,
		IdentityWebhook:     hook,
		Roles:               auth.NewRoles("sk_test_"+name, identitySrv.URL+"/v1"),
		Stripe:              strp,
		StripeWebhookSecret: webhookSecret,
		Paypal:              pp,
		Checkout: payment.Settings{
			Currency:   "usd",
			SuccessURL: successURL,
			CancelURL:  "http://localhost:5173/course/{courseId}",
		},
		Media:   store,
		Limiter: rate.NewLimiter(ctx, 100, time.Millisecond, time.Minute),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	mux := api.APIMux(cfg)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:        srv,
		DB:            db,
		Stripe:        ms,
		Paypal:        mp,
		Media:         store,
		Identity:      mi,
		WebhookSecret: webhookSecret,
		IdentityHook:  hook,
		key:           key,
	}, nil
}

// Token issues a session token for userID, as the identity provider would.
func (env *TestEnv) Token(t *testing.T, userID, role string) string {
	t.Helper()

	now := time.Now()
	c := jwt.MapClaims{
		"iss":   issuer,
		"sub":   userID,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"name":  "Name of " + userID,
		"email": userID + "@edemy.test",
	}
	if role != "" {
		c["public_metadata"] = map[string]any{"role": role}
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(env.key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return raw
}

// Do sends body as JSON on behalf of the holder of token.
func (env *TestEnv) Do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, env.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Body.Close() })
	return w
}

// Expect fails the test unless w carries status, then decodes its body into dst.
func Expect(t *testing.T, w *http.Response, status int, dst any) {
	t.Helper()

	if w.StatusCode != status {
		b, _ := io.ReadAll(w.Body)
		t.Fatalf("%s %s: expected status %d, got %d: %s", w.Request.Method, w.Request.URL.Path, status, w.StatusCode, b)
	}
	if dst == nil {
		return
	}
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}
