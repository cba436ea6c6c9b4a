package enrollment

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Add creates the enrollment edge. It reports false when the edge existed.
func Add(ctx context.Context, db sqlx.ExtContext, userID, courseID string, now time.Time) (bool, error) {
	const q = `
	INSERT INTO enrollments
		(user_id, course_id, created_at)
	VALUES
		($1, $2, $3)
	ON CONFLICT (user_id, course_id) DO NOTHING`

	res, err := db.ExecContext(ctx, q, userID, courseID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func Remove(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (bool, error) {
	const q = `DELETE FROM enrollments WHERE user_id = $1 AND course_id = $2`

	res, err := db.ExecContext(ctx, q, userID, courseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func Exists(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2
	)`

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, userID, courseID); err != nil {
		return false, err
	}
	return ok, nil
}

// CourseIDs lists the courses a user is enrolled in, oldest enrollment first.
func CourseIDs(ctx context.Context, db sqlx.ExtContext, userID string) ([]string, error) {
	const q = `
	SELECT course_id::text
	FROM enrollments
	WHERE user_id = $1
	ORDER BY created_at, course_id`

	ids := []string{}
	if err := sqlx.SelectContext(ctx, db, &ids, q, userID); err != nil {
		return nil, err
	}
	return ids, nil
}

type Progress struct {
	UserID            string         `json:"userId" db:"user_id"`
	CourseID          string         `json:"courseId" db:"course_id"`
	CompletedLectures pq.StringArray `json:"lectureCompleted" db:"completed_lectures"`
	LastChapterID     string         `json:"lastChapterId" db:"last_chapter_id"`
	LastLectureID     string         `json:"lastLectureId" db:"last_lecture_id"`
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`
}

func FetchProgress(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (Progress, error) {
	const q = `
	SELECT user_id, course_id, completed_lectures, last_chapter_id, last_lecture_id, updated_at
	FROM course_progress
	WHERE user_id = $1 AND course_id = $2`

	var p Progress
	if err := sqlx.GetContext(ctx, db, &p, q, userID, courseID); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// ListProgress returns the user's progress in every course, most recent first.
func ListProgress(ctx context.Context, db sqlx.ExtContext, userID string) ([]Progress, error) {
	const q = `
	SELECT user_id, course_id, completed_lectures, last_chapter_id, last_lecture_id, updated_at
	FROM course_progress
	WHERE user_id = $1
	ORDER BY updated_at DESC`

	out := []Progress{}
	if err := sqlx.SelectContext(ctx, db, &out, q, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkLecture records lectureID as completed and as the last one watched.
// Completing the same lecture twice keeps a single entry.
func MarkLecture(ctx context.Context, db sqlx.ExtContext, userID, courseID, chapterID, lectureID string, now time.Time) error {
	const q = `
	INSERT INTO course_progress
		(user_id, course_id, completed_lectures, last_chapter_id, last_lecture_id, updated_at)
	VALUES
		($1, $2, ARRAY[$4::text], $3, $4, $5)
	ON CONFLICT (user_id, course_id) DO UPDATE SET
		completed_lectures = CASE
			WHEN $4 = ANY(course_progress.completed_lectures) THEN course_progress.completed_lectures
			ELSE array_append(course_progress.completed_lectures, $4::text)
		END,
		last_chapter_id = EXCLUDED.last_chapter_id,
		last_lecture_id = EXCLUDED.last_lecture_id,
		updated_at = EXCLUDED.updated_at`

	if _, err := db.ExecContext(ctx, q, userID, courseID, chapterID, lectureID, now); err != nil {
		return err
	}
	return nil
}

func DeleteProgress(ctx context.Context, db sqlx.ExtContext, userID, courseID string) error {
	const q = `DELETE FROM course_progress WHERE user_id = $1 AND course_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, courseID); err != nil {
		return err
	}
	return nil
}
