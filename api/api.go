package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/edemy/api/health"
	"github.com/irsalhamdi/edemy/api/middleware"
	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/core/auth"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/educator"
	"github.com/irsalhamdi/edemy/core/enrollment"
	"github.com/irsalhamdi/edemy/core/payment"
	"github.com/irsalhamdi/edemy/media"
	"github.com/irsalhamdi/edemy/rate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	svix "github.com/svix/svix-webhooks/go"
)

type APIConfig struct {
	CorsOrigin          string
	Log                 logrus.FieldLogger
	DB                  *sqlx.DB
	Verifier            auth.Verifier
	IdentityWebhook     *svix.Webhook
	Roles               auth.RoleGranter
	Stripe              *stripecl.API
	StripeWebhookSecret string
	Paypal              *paypal.Client
	Checkout            payment.Settings
	Media               media.Store
	Cache               course.Cache
	Limiter             *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Verifier)
	edu := auth.Educator()

	var limit web.Middleware
	if cfg.Limiter != nil {
		limit = middleware.RateLimit(cfg.Limiter)
	}

	a.Handle(http.MethodGet, "/api/test-db", health.HandleDB(cfg.DB))

	a.Handle(http.MethodGet, "/api/courses", course.HandleList(cfg.DB, cfg.Cache, cfg.Log))
	a.Handle(http.MethodGet, "/api/courses/{id}", course.HandleShow(cfg.DB))

	if cfg.Roles != nil {
		a.Handle(http.MethodGet, "/api/educator/update-role", auth.HandleUpdateRole(cfg.Roles, cfg.Log), authen)
	}
	a.Handle(http.MethodPost, "/api/educator/add-course", educator.HandleCreate(cfg.DB, cfg.Media, cfg.Log), authen, edu)
	a.Handle(http.MethodGet, "/api/educator/courses", educator.HandleListOwned(cfg.DB), authen, edu)
	a.Handle(http.MethodDelete, "/api/educator/courses/{id}", educator.HandleDelete(cfg.DB, cfg.Media, cfg.Log), authen, edu)
	a.Handle(http.MethodGet, "/api/educator/dashboard", educator.HandleDashboard(cfg.DB), authen, edu)
	a.Handle(http.MethodGet, "/api/educator/enrolled-students", educator.HandleEnrolledStudents(cfg.DB), authen, edu)

	providers := payment.Providers{Stripe: cfg.Stripe, Paypal: cfg.Paypal}

	a.Handle(http.MethodGet, "/api/user/data", enrollment.HandleProfile(cfg.DB), authen)
	a.Handle(http.MethodGet, "/api/user/enrolled-courses", enrollment.HandleListEnrolled(cfg.DB), authen)
	a.Handle(http.MethodPost, "/api/user/purchase", payment.HandlePurchase(cfg.DB, providers, cfg.Checkout, cfg.Log), authen, limit)
	a.Handle(http.MethodPost, "/api/user/direct-enroll", enrollment.HandleDirectEnroll(cfg.DB, cfg.Checkout.Currency, cfg.Checkout.Bypass), authen, limit)
	a.Handle(http.MethodPost, "/api/user/unenroll", enrollment.HandleUnenroll(cfg.DB, cfg.Log), authen)
	a.Handle(http.MethodGet, "/api/user/enrollment-status/{courseId}", enrollment.HandleStatus(cfg.DB), authen)
	a.Handle(http.MethodPost, "/api/user/update-course-progress", enrollment.HandleUpdateProgress(cfg.DB), authen)
	a.Handle(http.MethodPost, "/api/user/get-course-progress", enrollment.HandleGetProgress(cfg.DB), authen)
	a.Handle(http.MethodPost, "/api/user/add-rating", enrollment.HandleAddRating(cfg.DB), authen)

	if cfg.Paypal != nil {
		a.Handle(http.MethodPost, "/api/user/purchase/paypal/{orderId}/capture", payment.HandlePaypalCapture(cfg.DB, cfg.Paypal, cfg.Log), authen, limit)
	}

	a.Handle(http.MethodPost, "/stripe", payment.HandleStripeWebhook(cfg.DB, cfg.StripeWebhookSecret, cfg.Log))
	if cfg.IdentityWebhook != nil {
		a.Handle(http.MethodPost, "/clerk", auth.HandleClerkWebhook(cfg.DB, cfg.IdentityWebhook, cfg.Log))
	}

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
