package enrollment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/core/claims"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/irsalhamdi/edemy/database"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type CourseRequest struct {
	CourseID string `json:"courseId" validate:"required"`
}

type ProgressRequest struct {
	CourseID  string `json:"courseId" validate:"required"`
	ChapterID string `json:"chapterId"`
	LectureID string `json:"lectureId" validate:"required"`
}

type RatingRequest struct {
	CourseID string `json:"courseId" validate:"required"`
	Rating   int    `json:"rating" validate:"gte=1,lte=5"`
}

// Status is the enrollment state of the caller for one course.
type Status struct {
	IsEnrolled bool `json:"isEnrolled"`
	IsPending  bool `json:"isPending"`
}

// DecodeCourseID reads a {courseId} body and checks the id.
func DecodeCourseID(w http.ResponseWriter, r *http.Request) (string, error) {
	var req CourseRequest
	if err := web.Decode(w, r, &req); err != nil {
		return "", weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}
	if err := validate.Check(req); err != nil {
		return "", weberr.Validation(err)
	}
	if err := validate.CheckID(req.CourseID); err != nil {
		return "", weberr.NotFound(fmt.Errorf("course[%s]: %w", req.CourseID, err))
	}
	return req.CourseID, nil
}

// FetchCourse loads a course, reporting a missing one as not found.
func FetchCourse(ctx context.Context, db sqlx.ExtContext, id string) (course.Course, error) {
	c, err := course.Fetch(ctx, db, id)
	if err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return course.Course{}, weberr.NotFound(fmt.Errorf("course[%s] not found", id))
		}
		return course.Course{}, fmt.Errorf("fetching course[%s]: %w", id, err)
	}
	return c, nil
}

func caller(ctx context.Context) (claims.Claims, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return claims.Claims{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}
	return clm, nil
}

// HandleListEnrolled returns every course the caller has access to, whether
// recorded as an enrollment or only as a completed purchase.
func HandleListEnrolled(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		enrolled, err := CourseIDs(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing enrollments of user[%s]: %w", clm.UserID, err)
		}
		paid, err := purchase.CompletedCourseIDs(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing completed purchases of user[%s]: %w", clm.UserID, err)
		}

		ids := Union(enrolled, paid)
		courses, err := course.FetchMany(ctx, db, ids)
		if err != nil {
			return fmt.Errorf("fetching enrolled courses: %w", err)
		}

		byID := make(map[string]course.Course, len(courses))
		for _, c := range courses {
			byID[c.ID] = c
		}
		out := make([]course.Course, 0, len(ids))
		for _, id := range ids {
			if c, ok := byID[id]; ok {
				out = append(out, c)
			}
		}

		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

// HandleDirectEnroll enrolls the caller without going through a payment
// provider. Only free courses qualify unless payments are bypassed.
func HandleDirectEnroll(db *sqlx.DB, currency string, bypass bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		courseID, err := DecodeCourseID(w, r)
		if err != nil {
			return err
		}

		if _, err := user.Ensure(ctx, db, user.FromClaims(clm)); err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}

		c, err := FetchCourse(ctx, db, courseID)
		if err != nil {
			return err
		}
		if !c.Published {
			return weberr.NotFound(fmt.Errorf("course[%s] not published", courseID))
		}

		enrolled, err := Exists(ctx, db, clm.UserID, courseID)
		if err != nil {
			return fmt.Errorf("checking enrollment: %w", err)
		}
		if enrolled {
			return weberr.Validation(errors.New("already enrolled in this course"))
		}

		net, err := c.Amount()
		if err != nil {
			return fmt.Errorf("pricing course[%s]: %w", courseID, err)
		}
		provider := purchase.ProviderDirect
		if !net.IsZero() {
			if !bypass {
				err := errors.New("this course requires payment")
				return weberr.NewError(err, err.Error(), http.StatusPaymentRequired)
			}
			provider = purchase.ProviderBypass
		}

		p, err := Fulfill(ctx, db, Payment{
			UserID:   clm.UserID,
			CourseID: courseID,
			Provider: provider,
			Currency: currency,
		}, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("enrolling user[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

// HandleUnenroll removes the caller from a course along with its progress and
// purchases.
func HandleUnenroll(db *sqlx.DB, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		courseID, err := DecodeCourseID(w, r)
		if err != nil {
			return err
		}

		enrolled, err := Exists(ctx, db, clm.UserID, courseID)
		if err != nil {
			return fmt.Errorf("checking enrollment: %w", err)
		}
		if !enrolled {
			paid, err := purchase.HasStatus(ctx, db, clm.UserID, courseID, purchase.Completed)
			if err != nil {
				return fmt.Errorf("checking completed purchases: %w", err)
			}
			if !paid {
				return weberr.Validation(errors.New("not enrolled in this course"))
			}
		}

		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			if _, err := Remove(ctx, tx, clm.UserID, courseID); err != nil {
				return fmt.Errorf("removing enrollment: %w", err)
			}
			if err := DeleteProgress(ctx, tx, clm.UserID, courseID); err != nil {
				return fmt.Errorf("removing progress: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("unenrolling user[%s] from course[%s]: %w", clm.UserID, courseID, err)
		}

		if n, err := purchase.DeleteForPair(ctx, db, clm.UserID, courseID); err != nil {
			log.WithFields(logrus.Fields{
				"user_id":   clm.UserID,
				"course_id": courseID,
			}).WithError(err).Warn("removing purchases after unenroll")
		} else {
			log.WithFields(logrus.Fields{
				"user_id":   clm.UserID,
				"course_id": courseID,
				"purchases": n,
			}).Info("user unenrolled")
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleStatus reports whether the caller is enrolled in a course or has a
// payment in flight. A completed purchase without enrollment is repaired first.
func HandleStatus(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		courseID := web.Param(r, "courseId")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", courseID, err))
		}
		if _, err := FetchCourse(ctx, db, courseID); err != nil {
			return err
		}

		var st Status
		st.IsEnrolled, err = Repair(ctx, db, clm.UserID, courseID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("checking enrollment of user[%s] in course[%s]: %w", clm.UserID, courseID, err)
		}
		if !st.IsEnrolled {
			st.IsPending, err = purchase.HasStatus(ctx, db, clm.UserID, courseID, purchase.Pending, purchase.Processing)
			if err != nil {
				return fmt.Errorf("checking pending purchases: %w", err)
			}
		}

		return web.Respond(ctx, w, st, http.StatusOK)
	}
}

func requireEnrolled(ctx context.Context, db sqlx.ExtContext, userID, courseID string) error {
	ok, err := Repair(ctx, db, userID, courseID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("checking enrollment: %w", err)
	}
	if !ok {
		return weberr.Forbidden(fmt.Errorf("user[%s] is not enrolled in course[%s]", userID, courseID))
	}
	return nil
}

// HandleUpdateProgress marks a lecture of an enrolled course as completed.
func HandleUpdateProgress(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		var req ProgressRequest
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(req); err != nil {
			return weberr.Validation(err)
		}
		if err := validate.CheckID(req.CourseID); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", req.CourseID, err))
		}

		c, err := FetchCourse(ctx, db, req.CourseID)
		if err != nil {
			return err
		}
		if !c.Content.HasLecture(req.LectureID) {
			return weberr.Validation(fmt.Errorf("lecture %s does not belong to this course", req.LectureID))
		}
		if err := requireEnrolled(ctx, db, clm.UserID, req.CourseID); err != nil {
			return err
		}

		if err := MarkLecture(ctx, db, clm.UserID, req.CourseID, req.ChapterID, req.LectureID, time.Now().UTC()); err != nil {
			return fmt.Errorf("updating progress: %w", err)
		}

		p, err := FetchProgress(ctx, db, clm.UserID, req.CourseID)
		if err != nil {
			return fmt.Errorf("fetching progress: %w", err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleGetProgress returns the caller's progress in a course, empty when
// nothing has been watched yet.
func HandleGetProgress(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		courseID, err := DecodeCourseID(w, r)
		if err != nil {
			return err
		}

		p, err := FetchProgress(ctx, db, clm.UserID, courseID)
		if err != nil {
			if !errors.Is(err, database.ErrDBNotFound) {
				return fmt.Errorf("fetching progress: %w", err)
			}
			p = Progress{
				UserID:            clm.UserID,
				CourseID:          courseID,
				CompletedLectures: []string{},
			}
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

// HandleAddRating records the caller's rating of an enrolled course,
// replacing any previous one.
func HandleAddRating(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		var req RatingRequest
		if err := web.Decode(w, r, &req); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(req); err != nil {
			return weberr.Validation(err)
		}
		if err := validate.CheckID(req.CourseID); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", req.CourseID, err))
		}

		if _, err := FetchCourse(ctx, db, req.CourseID); err != nil {
			return err
		}
		if err := requireEnrolled(ctx, db, clm.UserID, req.CourseID); err != nil {
			return err
		}

		var ratings course.Ratings
		err = database.Transaction(db, func(tx sqlx.ExtContext) error {
			cur, err := course.LockRatings(ctx, tx, req.CourseID)
			if err != nil {
				return fmt.Errorf("reading ratings: %w", err)
			}
			ratings = cur.Upsert(clm.UserID, req.Rating)
			return course.UpdateRatings(ctx, tx, req.CourseID, ratings, time.Now().UTC())
		})
		if err != nil {
			return fmt.Errorf("rating course[%s]: %w", req.CourseID, err)
		}

		resp := struct {
			CourseID string  `json:"courseId"`
			Rating   int     `json:"rating"`
			Average  float64 `json:"averageRating"`
			Count    int     `json:"ratingCount"`
		}{
			CourseID: req.CourseID,
			Rating:   req.Rating,
			Average:  ratings.Average(),
			Count:    len(ratings),
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
