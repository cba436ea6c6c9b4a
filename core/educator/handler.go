package educator

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
	"github.com/irsalhamdi/edemy/media"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	courseDataField = "courseData"
	thumbnailField  = "image"
)

func caller(ctx context.Context) (claims.Claims, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return claims.Claims{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}
	return clm, nil
}

// HandleCreate publishes a new course owned by the caller. The request is a
// multipart form holding the course as JSON and its thumbnail image.
func HandleCreate(db *sqlx.DB, store media.Store, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		var nc course.CourseNew
		f, fh, err := web.DecodeMultipart(w, r, courseDataField, &nc, thumbnailField)
		if err != nil {
			if errors.Is(err, web.ErrMissingFile) {
				return weberr.Validation(errors.New("thumbnail not attached"))
			}
			return weberr.Validation(err)
		}
		defer f.Close()

		if err := validate.Check(nc); err != nil {
			return weberr.Validation(err)
		}
		if _, err := course.NetPrice(nc.Price, nc.Discount); err != nil {
			return weberr.Validation(err)
		}
		if err := media.CheckImage(fh.Filename); err != nil {
			return weberr.Validation(err)
		}
		if store == nil {
			return weberr.Upstream(errors.New("media storage is not configured"))
		}

		if _, err := user.Ensure(ctx, db, user.FromClaims(clm)); err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}

		now := time.Now().UTC()
		c := course.Course{
			ID:          validate.GenerateID(),
			Title:       nc.Title,
			Description: nc.Description,
			Price:       nc.Price.Round(2),
			Discount:    nc.Discount,
			Published:   true,
			EducatorID:  clm.UserID,
			Content:     nc.Content,
			Ratings:     course.Ratings{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if nc.Published != nil {
			c.Published = *nc.Published
		}
		c.ThumbnailKey = media.ThumbnailKey(c.ID, fh.Filename)

		c.Thumbnail, err = store.Upload(ctx, c.ThumbnailKey, f)
		if err != nil {
			return weberr.Upstream(fmt.Errorf("uploading thumbnail: %w", err))
		}

		if err := course.Create(ctx, db, c); err != nil {
			if derr := store.Delete(ctx, c.ThumbnailKey); derr != nil {
				log.WithError(derr).WithField("key", c.ThumbnailKey).Warn("removing orphan thumbnail")
			}
			return fmt.Errorf("creating course: %w", err)
		}

		c, err = course.Fetch(ctx, db, c.ID)
		if err != nil {
			return fmt.Errorf("fetching created course: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

// HandleListOwned returns the caller's courses including unpublished ones.
func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		courses, err := course.ListByEducator(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing courses of educator[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

// HandleDelete removes one of the caller's courses as long as nobody is
// enrolled in it.
func HandleDelete(db *sqlx.DB, store media.Store, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if _, err := caller(ctx); err != nil {
			return err
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", id, err))
		}

		c, err := course.Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(fmt.Errorf("course[%s] not found", id))
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}
		if !claims.IsUser(ctx, c.EducatorID) {
			return weberr.Forbidden(fmt.Errorf("course[%s] is owned by educator[%s]", id, c.EducatorID))
		}

		errEnrolled := errors.New("cannot delete a course with enrolled students")
		if len(c.EnrolledStudents) > 0 {
			return weberr.Validation(errEnrolled)
		}

		deleted, err := course.Delete(ctx, db, id)
		if err != nil {
			return fmt.Errorf("deleting course[%s]: %w", id, err)
		}
		if !deleted {
			return weberr.Validation(errEnrolled)
		}

		if store != nil && c.ThumbnailKey != "" {
			if err := store.Delete(ctx, c.ThumbnailKey); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"course_id": id,
					"key":       c.ThumbnailKey,
				}).Warn("deleting course thumbnail")
			}
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleDashboard summarizes the caller's earnings and students.
func HandleDashboard(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		var (
			earnings decimal.Decimal
			courses  []course.Course
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			earnings, err = purchase.Earnings(gctx, db, clm.UserID)
			if err != nil {
				return fmt.Errorf("computing earnings: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			courses, err = course.ListByEducator(gctx, db, clm.UserID)
			if err != nil {
				return fmt.Errorf("listing courses: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("building dashboard of educator[%s]: %w", clm.UserID, err)
		}

		var ids []string
		for _, c := range courses {
			ids = append(ids, c.EnrolledStudents...)
		}
		students, err := user.FetchSummaries(ctx, db, ids)
		if err != nil {
			return fmt.Errorf("fetching students: %w", err)
		}

		d := Dashboard{
			TotalEarnings: earnings,
			TotalCourses:  len(courses),
			Enrolled:      []EnrolledStudent{},
		}
		for _, c := range courses {
			for _, sid := range c.EnrolledStudents {
				s, ok := students[sid]
				if !ok {
					continue
				}
				d.Enrolled = append(d.Enrolled, EnrolledStudent{
					CourseID:    c.ID,
					CourseTitle: c.Title,
					Student:     s,
				})
			}
		}

		return web.Respond(ctx, w, d, http.StatusOK)
	}
}

// HandleEnrolledStudents lists the completed purchases of the caller's courses.
func HandleEnrolledStudents(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := caller(ctx)
		if err != nil {
			return err
		}

		sales, err := purchase.ListSales(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing sales of educator[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, sales, http.StatusOK)
	}
}
