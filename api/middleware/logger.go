package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger writes one entry per request once it completes. Provider webhooks
// and health checks are logged at debug level when they succeed.
func Logger(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			start := time.Now()

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			status := lw.Status()
			if status == 0 {
				status = http.StatusOK
			}

			entry := log.WithFields(logrus.Fields{
				"req_id":     ContextRequestID(ctx),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remoteaddr": r.RemoteAddr,
				"statuscode": status,
				"bytes":      lw.BytesWritten(),
				"since":      time.Since(start).String(),
			})

			switch {
			case status >= http.StatusInternalServerError:
				entry.Warn("completed")
			case quiet(r) && status < http.StatusBadRequest:
				entry.Debug("completed")
			default:
				entry.Info("completed")
			}
			return err
		}
		return h
	}
	return m
}

func quiet(r *http.Request) bool {
	switch r.URL.Path {
	case "/api/test-db", "/stripe", "/clerk":
		return true
	}
	return false
}
