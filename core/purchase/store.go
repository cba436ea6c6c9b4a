package purchase

import (
	"context"
	"time"

	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const selectPurchases = `
	SELECT
		purchase_id, user_id, course_id, amount, original_amount, price_adjusted,
		currency, status, provider, provider_ref, completed_at, created_at, updated_at
	FROM purchases`

func Create(ctx context.Context, db sqlx.ExtContext, p Purchase) error {
	const q = `
	INSERT INTO purchases
		(purchase_id, user_id, course_id, amount, original_amount, price_adjusted,
		 currency, status, provider, provider_ref, completed_at, created_at, updated_at)
	VALUES
		(:purchase_id, :user_id, :course_id, :amount, :original_amount, :price_adjusted,
		 :currency, :status, :provider, :provider_ref, :completed_at, :created_at, :updated_at)`

	if _, err := database.NamedExecContext(ctx, db, q, p); err != nil {
		return err
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Purchase, error) {
	q := selectPurchases + `
	WHERE purchase_id = $1`

	var p Purchase
	if err := sqlx.GetContext(ctx, db, &p, q, id); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func FetchByProviderRef(ctx context.Context, db sqlx.ExtContext, provider, ref string) (Purchase, error) {
	q := selectPurchases + `
	WHERE provider = $1 AND provider_ref = $2`

	var p Purchase
	if err := sqlx.GetContext(ctx, db, &p, q, provider, ref); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// FetchCompleted returns the earliest completed purchase of the course by the user.
func FetchCompleted(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (Purchase, error) {
	q := selectPurchases + `
	WHERE user_id = $1 AND course_id = $2 AND status = $3
	ORDER BY completed_at, created_at
	LIMIT 1`

	var p Purchase
	if err := sqlx.GetContext(ctx, db, &p, q, userID, courseID, Completed); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// SetProviderRef binds the purchase to the provider's checkout object.
func SetProviderRef(ctx context.Context, db sqlx.ExtContext, id, provider, ref string, now time.Time) error {
	const q = `
	UPDATE purchases SET
		provider = $2,
		provider_ref = $3,
		updated_at = $4
	WHERE purchase_id = $1`

	return execOne(ctx, db, q, id, provider, ref, now)
}

// Complete moves the purchase to completed. It reports false when the purchase
// was already in a status that cannot complete.
func Complete(ctx context.Context, db sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const q = `
	UPDATE purchases SET
		status = $2,
		completed_at = $3,
		updated_at = $3
	WHERE purchase_id = $1 AND status = ANY($4)`

	return transition(ctx, db, q, id, Completed, now, pq.StringArray(sources(Completed)))
}

// MarkProcessing records that the provider accepted a payment that has not
// settled yet.
func MarkProcessing(ctx context.Context, db sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const q = `
	UPDATE purchases SET
		status = $2,
		updated_at = $3
	WHERE purchase_id = $1 AND status = ANY($4)`

	return transition(ctx, db, q, id, Processing, now, pq.StringArray(sources(Processing)))
}

// Fail moves a pending or processing purchase to failed.
func Fail(ctx context.Context, db sqlx.ExtContext, id string, now time.Time) (bool, error) {
	const q = `
	UPDATE purchases SET
		status = $2,
		updated_at = $3
	WHERE purchase_id = $1 AND status = ANY($4)`

	return transition(ctx, db, q, id, Failed, now, pq.StringArray(sources(Failed)))
}

func transition(ctx context.Context, db sqlx.ExtContext, q string, args ...any) (bool, error) {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func execOne(ctx context.Context, db sqlx.ExtContext, q string, args ...any) error {
	ok, err := transition(ctx, db, q, args...)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrDBNotFound
	}
	return nil
}

// HasStatus reports whether the user holds a purchase of the course in any of
// the given statuses.
func HasStatus(ctx context.Context, db sqlx.ExtContext, userID, courseID string, st ...Status) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1 FROM purchases
		WHERE user_id = $1 AND course_id = $2 AND status = ANY($3)
	)`

	statuses := make(pq.StringArray, len(st))
	for i, s := range st {
		statuses[i] = string(s)
	}

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, userID, courseID, statuses); err != nil {
		return false, err
	}
	return ok, nil
}

// CompletedCourseIDs lists the courses the user paid for, oldest first.
func CompletedCourseIDs(ctx context.Context, db sqlx.ExtContext, userID string) ([]string, error) {
	const q = `
	SELECT course_id::text
	FROM purchases
	WHERE user_id = $1 AND status = $2
	GROUP BY course_id
	ORDER BY min(COALESCE(completed_at, created_at)), course_id`

	ids := []string{}
	if err := sqlx.SelectContext(ctx, db, &ids, q, userID, Completed); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteForPair removes every purchase of the course by the user.
func DeleteForPair(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (int64, error) {
	const q = `DELETE FROM purchases WHERE user_id = $1 AND course_id = $2`

	res, err := db.ExecContext(ctx, q, userID, courseID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Earnings sums the completed purchases of the educator's courses.
func Earnings(ctx context.Context, db sqlx.ExtContext, educatorID string) (decimal.Decimal, error) {
	const q = `
	SELECT COALESCE(sum(p.amount), 0)
	FROM purchases p
	JOIN courses c ON c.course_id = p.course_id
	WHERE c.educator_id = $1 AND p.status = $2`

	var tot decimal.Decimal
	if err := sqlx.GetContext(ctx, db, &tot, q, educatorID, Completed); err != nil {
		return decimal.Zero, err
	}
	return tot, nil
}

// ListSales returns the completed purchases of the educator's courses, newest first.
func ListSales(ctx context.Context, db sqlx.ExtContext, educatorID string) ([]Sale, error) {
	const q = `
	SELECT
		p.purchase_id, p.course_id, c.title AS course_title,
		p.user_id AS student_id,
		COALESCE(u.name, '') AS student_name,
		COALESCE(u.image_url, '') AS student_image_url,
		p.amount,
		COALESCE(p.completed_at, p.created_at) AS purchased_at
	FROM purchases p
	JOIN courses c ON c.course_id = p.course_id
	LEFT JOIN users u ON u.user_id = p.user_id
	WHERE c.educator_id = $1 AND p.status = $2
	ORDER BY purchased_at DESC, p.purchase_id`

	sales := []Sale{}
	if err := sqlx.SelectContext(ctx, db, &sales, q, educatorID, Completed); err != nil {
		return nil, err
	}
	return sales, nil
}

// EventSeen reports whether a provider event was already handled.
func EventSeen(ctx context.Context, db sqlx.ExtContext, provider, eventID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2
	)`

	var ok bool
	if err := sqlx.GetContext(ctx, db, &ok, q, provider, eventID); err != nil {
		return false, err
	}
	return ok, nil
}

// RecordEvent marks a provider event as handled.
func RecordEvent(ctx context.Context, db sqlx.ExtContext, provider, eventID, eventType string, now time.Time) error {
	const q = `
	INSERT INTO webhook_events
		(provider, event_id, event_type, processed_at)
	VALUES
		($1, $2, $3, $4)
	ON CONFLICT (provider, event_id) DO NOTHING`

	if _, err := db.ExecContext(ctx, q, provider, eventID, eventType, now); err != nil {
		return err
	}
	return nil
}
