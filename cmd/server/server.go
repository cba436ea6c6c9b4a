package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/edemy/api"
	"github.com/irsalhamdi/edemy/cache"
	"github.com/irsalhamdi/edemy/config"
	"github.com/irsalhamdi/edemy/core/auth"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/payment"
	"github.com/irsalhamdi/edemy/database"
	"github.com/irsalhamdi/edemy/media"
	"github.com/irsalhamdi/edemy/rate"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	svix "github.com/svix/svix-webhooks/go"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env file: %w", err)
	}

	const prefix = "EDEMY"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if cfg.Mode == config.ModeDevelopment {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.BypassPayment() {
		logger.Warn("payments are bypassed: every checkout enrolls immediately")
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.StatusCheck(ctx, db); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	strp := &stripecl.API{}
	strp.Init(cfg.Stripe.APISecret, nil)

	var pp *paypal.Client
	if cfg.Paypal.ClientID != "" {
		pp, err = paypal.NewClient(cfg.Paypal.ClientID, cfg.Paypal.Secret, cfg.Paypal.URL)
		if err != nil {
			return fmt.Errorf("failed to build the paypal client: %w", err)
		}
		if _, err = pp.GetAccessToken(ctx); err != nil {
			return fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
	}

	var idHook *svix.Webhook
	if cfg.Clerk.WebhookSecret != "" {
		idHook, err = svix.NewWebhook(cfg.Clerk.WebhookSecret)
		if err != nil {
			return fmt.Errorf("building identity webhook verifier: %w", err)
		}
	} else {
		logger.Warn("identity webhook secret not set: /clerk is disabled")
	}

	var roles auth.RoleGranter
	if cfg.Clerk.SecretKey != "" {
		roles = auth.NewRoles(cfg.Clerk.SecretKey, cfg.Clerk.APIURL)
	} else {
		logger.Warn("identity secret key not set: /api/educator/update-role is disabled")
	}

	bg, stop := context.WithCancel(context.Background())
	defer stop()

	verifier := auth.NewVerifier(bg, cfg.Clerk.Issuer, cfg.Clerk.JWKSURL)

	var store media.Store
	if cfg.Media.Bucket != "" {
		gcs, err := media.NewGCS(bg, cfg.Media.Bucket, cfg.Media.CDNDomain, cfg.Media.CredentialsFile)
		if err != nil {
			return fmt.Errorf("connecting to media storage: %w", err)
		}
		defer gcs.Close()
		store = gcs
	} else {
		logger.Warn("media bucket not set: course creation is disabled")
	}

	var catalog course.Cache
	if cfg.Redis.Addr != "" {
		rc := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis not reachable: catalog cache may be unavailable")
		}
		catalog = rc
	}

	limiter := rate.NewLimiter(bg, cfg.Rate.Burst, cfg.Rate.Every, time.Duration(cfg.Rate.Expiry)*time.Minute)

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:          cfg.Cors.Origin,
		Log:                 logger,
		DB:                  db,
		Verifier:            verifier,
		IdentityWebhook:     idHook,
		Roles:               roles,
		Stripe:              strp,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		Paypal:              pp,
		Checkout: payment.Settings{
			Currency:   cfg.Payment.Currency,
			Bypass:     cfg.BypassPayment(),
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		},
		Media:   store,
		Cache:   catalog,
		Limiter: limiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}
