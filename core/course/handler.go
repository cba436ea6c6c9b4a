package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/edemy/api/web"
	"github.com/irsalhamdi/edemy/api/weberr"
	"github.com/irsalhamdi/edemy/database"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	CatalogCacheKey = "catalog:published"
	catalogCacheTTL = 24 * time.Hour

	catalogSourceHeader = "X-Catalog-Source"
)

// Cache keeps the last known catalog around for when the database is down.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
}

// Public strips the lecture media of a listed course.
func Public(c Course) Course {
	c.Content = c.Content.WithoutLectureURLs()
	return c
}

// Preview keeps the media of free preview lectures only.
func Preview(c Course) Course {
	c.Content = c.Content.WithPreviewsOnly()
	return c
}

// HandleList returns every published course. When the database cannot be
// read, the cached listing is served instead, or an empty one.
func HandleList(db *sqlx.DB, cache Cache, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courses, err := ListPublished(ctx, db)
		if err != nil {
			log.WithError(err).Error("listing published courses, serving fallback catalog")

			cached := []Course{}
			if cache != nil {
				found, cerr := cache.Get(ctx, CatalogCacheKey, &cached)
				if cerr != nil {
					log.WithError(cerr).Warn("reading catalog cache")
				}
				if found {
					w.Header().Set(catalogSourceHeader, "cache")
					return web.Respond(ctx, w, cached, http.StatusOK)
				}
			}

			w.Header().Set(catalogSourceHeader, "placeholder")
			return web.Respond(ctx, w, []Course{}, http.StatusOK)
		}

		for i := range courses {
			courses[i] = Public(courses[i])
		}

		if cache != nil {
			if err := cache.Set(ctx, CatalogCacheKey, courses, catalogCacheTTL); err != nil {
				log.WithError(err).Warn("writing catalog cache")
			}
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

// HandleShow returns a published course with only its free previews playable.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(fmt.Errorf("course[%s]: %w", id, err))
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, database.ErrDBNotFound) {
				return weberr.NotFound(fmt.Errorf("course[%s] not found", id))
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}
		if !c.Published {
			return weberr.NotFound(fmt.Errorf("course[%s] not published", id))
		}

		return web.Respond(ctx, w, Preview(c), http.StatusOK)
	}
}
