package enrollment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/jmoiron/sqlx"
)

// Profile is a user together with their course access and progress.
type Profile struct {
	user.User
	EnrolledCourses []string   `json:"enrolledCourses"`
	CourseProgress  []Progress `json:"courseProgress"`
}

// FetchProfile assembles the profile of an existing user. Enrolled courses
// follow the same union as the enrolled-courses listing.
func FetchProfile(ctx context.Context, db sqlx.ExtContext, u user.User) (Profile, error) {
	enrolled, err := CourseIDs(ctx, db, u.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("listing enrollments: %w", err)
	}
	paid, err := purchase.CompletedCourseIDs(ctx, db, u.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("listing completed purchases: %w", err)
	}
	progress, err := ListProgress(ctx, db, u.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("listing progress: %w", err)
	}

	return Profile{
		User:            u,
		EnrolledCourses: Union(enrolled, paid),
		CourseProgress:  progress,
	}, nil
}

// HandleProfile returns the caller's profile, creating the user on first access.
func HandleProfile(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		u, err := user.Ensure(ctx, db, user.FromClaims(clm))
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}

		p, err := FetchProfile(ctx, db, u)
		if err != nil {
			return fmt.Errorf("loading profile of user[%s]: %w", u.ID, err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
