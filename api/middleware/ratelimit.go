package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/claims"
	"github.com/irsalhamdi/edemy/rate"
)

// RateLimit throttles callers by user id, falling back to the remote host for
// anonymous requests.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}
			if clm, err := claims.Get(ctx); err == nil {
				key = clm.UserID
			}

			if !lim.Check(key) {
				return weberr.TooManyRequests(errors.New("rate limit exceeded"))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
