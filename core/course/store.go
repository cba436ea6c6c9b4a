package course

import (
	"context"
	"time"

	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// row is a course joined with its owner and enrolled students.
type row struct {
	Course
	EducatorName     string         `db:"educator_name"`
	EducatorImageURL string         `db:"educator_image_url"`
	Students         pq.StringArray `db:"enrolled_students"`
}

func (r row) course() Course {
	c := r.Course
	c.Educator = &Educator{
		ID:       c.EducatorID,
		Name:     r.EducatorName,
		ImageURL: r.EducatorImageURL,
	}
	c.EnrolledStudents = []string(r.Students)
	if c.EnrolledStudents == nil {
		c.EnrolledStudents = []string{}
	}
	if c.Content == nil {
		c.Content = Content{}
	}
	if c.Ratings == nil {
		c.Ratings = Ratings{}
	}
	return c
}

const selectCourses = `
	SELECT
		c.course_id, c.title, c.description, c.price, c.discount,
		c.thumbnail_url, c.thumbnail_key, c.published, c.educator_id,
		c.content, c.ratings, c.created_at, c.updated_at,
		COALESCE(u.name, '') AS educator_name,
		COALESCE(u.image_url, '') AS educator_image_url,
		ARRAY(
			SELECT e.user_id FROM enrollments e
			WHERE e.course_id = c.course_id
			ORDER BY e.created_at, e.user_id
		) AS enrolled_students
	FROM courses c
	LEFT JOIN users u ON u.user_id = c.educator_id`

func selectMany(ctx context.Context, db sqlx.ExtContext, q string, args ...any) ([]Course, error) {
	var rows []row
	if err := sqlx.SelectContext(ctx, db, &rows, q, args...); err != nil {
		return nil, err
	}

	courses := make([]Course, len(rows))
	for i, r := range rows {
		courses[i] = r.course()
	}
	return courses, nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Course, error) {
	q := selectCourses + `
	WHERE c.course_id = $1`

	var r row
	if err := sqlx.GetContext(ctx, db, &r, q, id); err != nil {
		return Course{}, err
	}
	return r.course(), nil
}

func FetchMany(ctx context.Context, db sqlx.ExtContext, ids []string) ([]Course, error) {
	q := selectCourses + `
	WHERE c.course_id = ANY($1::uuid[])
	ORDER BY c.created_at DESC, c.course_id`

	return selectMany(ctx, db, q, pq.StringArray(ids))
}

func ListPublished(ctx context.Context, db sqlx.ExtContext) ([]Course, error) {
	q := selectCourses + `
	WHERE c.published
	ORDER BY c.created_at DESC, c.course_id`

	return selectMany(ctx, db, q)
}

func ListByEducator(ctx context.Context, db sqlx.ExtContext, educatorID string) ([]Course, error) {
	q := selectCourses + `
	WHERE c.educator_id = $1
	ORDER BY c.created_at DESC, c.course_id`

	return selectMany(ctx, db, q, educatorID)
}

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses
		(course_id, title, description, price, discount, thumbnail_url, thumbnail_key,
		 published, educator_id, content, ratings, created_at, updated_at)
	VALUES
		(:course_id, :title, :description, :price, :discount, :thumbnail_url, :thumbnail_key,
		 :published, :educator_id, :content, :ratings, :created_at, :updated_at)`

	if _, err := database.NamedExecContext(ctx, db, q, c); err != nil {
		return err
	}
	return nil
}

// UpdateRatings overwrites the rating list of a course.
func UpdateRatings(ctx context.Context, db sqlx.ExtContext, id string, r Ratings, now time.Time) error {
	const q = `
	UPDATE courses SET
		ratings = $2,
		updated_at = $3
	WHERE course_id = $1`

	res, err := db.ExecContext(ctx, q, id, r, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return database.ErrDBNotFound
	}
	return nil
}

// Delete removes the course unless someone is enrolled in it. It reports
// whether a row was removed.
func Delete(ctx context.Context, db sqlx.ExtContext, id string) (bool, error) {
	const q = `
	DELETE FROM courses c
	WHERE c.course_id = $1
	AND NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.course_id)`

	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func Count(ctx context.Context, db sqlx.ExtContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT count(*) FROM courses`); err != nil {
		return 0, err
	}
	return n, nil
}

// LockRatings reads the rating list of a course and locks its row until the
// surrounding transaction ends.
func LockRatings(ctx context.Context, db sqlx.ExtContext, id string) (Ratings, error) {
	const q = `SELECT ratings FROM courses WHERE course_id = $1 FOR UPDATE`

	var r Ratings
	if err := sqlx.GetContext(ctx, db, &r, q, id); err != nil {
		return nil, err
	}
	return r, nil
}
