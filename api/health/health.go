package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
)

type Status struct {
	Status  string `json:"status"`
	Users   int    `json:"users"`
	Courses int    `json:"courses"`
}

// HandleDB reports whether the database answers, along with row counts.
func HandleDB(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := database.StatusCheck(ctx, db); err != nil {
			return weberr.NewError(err, "database unavailable", http.StatusServiceUnavailable)
		}

		var st Status
		var err error
		if st.Users, err = user.Count(ctx, db); err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		if st.Courses, err = course.Count(ctx, db); err != nil {
			return fmt.Errorf("counting courses: %w", err)
		}
		st.Status = "ok"

		return web.Respond(ctx, w, st, http.StatusOK)
	}
}
