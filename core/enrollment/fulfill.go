package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/edemy/core/course"
	"github.com/irsalhamdi/edemy/core/purchase"
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/irsalhamdi/edemy/database"
	"github.com/irsalhamdi/edemy/validate"
	"github.com/jmoiron/sqlx"
)

// ErrUnresolvable marks a payment that can never be turned into an enrollment,
// such as one whose user or course no longer exists. Retrying will not help.
var ErrUnresolvable = errors.New("payment cannot be matched to an enrollment")

// Payment describes a successful payment as reported by a provider or by a
// checkout that needs no provider.
type Payment struct {
	PurchaseID  string
	UserID      string
	CourseID    string
	Provider    string
	ProviderRef string
	Currency    string
}

// Fulfill enrolls the buyer of a successful payment and completes the matching
// purchase. It can be run any number of times for the same payment.
func Fulfill(ctx context.Context, db *sqlx.DB, pay Payment, now time.Time) (purchase.Purchase, error) {
	p, found, err := resolve(ctx, db, pay)
	if err != nil {
		return purchase.Purchase{}, err
	}

	userID, courseID := pay.UserID, pay.CourseID
	if found {
		userID, courseID = p.UserID, p.CourseID
	}
	if userID == "" || courseID == "" {
		return purchase.Purchase{}, fmt.Errorf("%w: no purchase[%s] and no user or course in metadata", ErrUnresolvable, pay.PurchaseID)
	}
	if err := validate.CheckID(courseID); err != nil {
		return purchase.Purchase{}, fmt.Errorf("%w: course[%s]: %v", ErrUnresolvable, courseID, err)
	}

	if _, err := user.Fetch(ctx, db, userID); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return purchase.Purchase{}, fmt.Errorf("%w: user[%s] not found", ErrUnresolvable, userID)
		}
		return purchase.Purchase{}, fmt.Errorf("fetching user[%s]: %w", userID, err)
	}

	c, err := course.Fetch(ctx, db, courseID)
	if err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return purchase.Purchase{}, fmt.Errorf("%w: course[%s] not found", ErrUnresolvable, courseID)
		}
		return purchase.Purchase{}, fmt.Errorf("fetching course[%s]: %w", courseID, err)
	}

	err = database.Transaction(db, func(tx sqlx.ExtContext) error {
		if _, err := Add(ctx, tx, userID, courseID, now); err != nil {
			return fmt.Errorf("adding enrollment: %w", err)
		}

		if found && p.Status.CanTransition(purchase.Completed) {
			if _, err := purchase.Complete(ctx, tx, p.ID, now); err != nil {
				return fmt.Errorf("completing purchase[%s]: %w", p.ID, err)
			}
			p.Status = purchase.Completed
			p.CompletedAt = &now
			return nil
		}
		if found && p.Status == purchase.Completed {
			return nil
		}

		// No purchase to complete: either it was never written or it already
		// ended without payment. Another event of the same payment may have
		// recorded it already.
		prev, err := purchase.FetchCompleted(ctx, tx, userID, courseID)
		switch {
		case err == nil:
			p = prev
			return nil
		case !errors.Is(err, database.ErrDBNotFound):
			return fmt.Errorf("fetching completed purchase: %w", err)
		}

		net, err := c.Amount()
		if err != nil {
			return fmt.Errorf("pricing course[%s]: %w", courseID, err)
		}
		provider := pay.Provider
		if provider == "" {
			provider = purchase.ProviderDirect
		}
		p = purchase.New(validate.GenerateID(), userID, courseID, purchase.Exact(net, pay.Currency), purchase.Completed, provider, now)
		p.ProviderRef = pay.ProviderRef
		if err := purchase.Create(ctx, tx, p); err != nil {
			return fmt.Errorf("creating completed purchase: %w", err)
		}
		return nil
	})
	if err != nil {
		return purchase.Purchase{}, fmt.Errorf("fulfilling payment of course[%s] by user[%s]: %w", courseID, userID, err)
	}

	if err := verify(ctx, db, userID, courseID, now); err != nil {
		return purchase.Purchase{}, err
	}

	return p, nil
}

// resolve finds the purchase a payment refers to, first by id then by the
// provider's reference.
func resolve(ctx context.Context, db sqlx.ExtContext, pay Payment) (purchase.Purchase, bool, error) {
	if pay.PurchaseID != "" && validate.CheckID(pay.PurchaseID) == nil {
		p, err := purchase.Fetch(ctx, db, pay.PurchaseID)
		switch {
		case err == nil:
			return p, true, nil
		case !errors.Is(err, database.ErrDBNotFound):
			return purchase.Purchase{}, false, fmt.Errorf("fetching purchase[%s]: %w", pay.PurchaseID, err)
		}
	}

	if pay.Provider != "" && pay.ProviderRef != "" {
		p, err := purchase.FetchByProviderRef(ctx, db, pay.Provider, pay.ProviderRef)
		switch {
		case err == nil:
			return p, true, nil
		case !errors.Is(err, database.ErrDBNotFound):
			return purchase.Purchase{}, false, fmt.Errorf("fetching purchase by %s reference[%s]: %w", pay.Provider, pay.ProviderRef, err)
		}
	}

	return purchase.Purchase{}, false, nil
}

// verify checks that the enrollment survived the write and puts it back if not.
func verify(ctx context.Context, db sqlx.ExtContext, userID, courseID string, now time.Time) error {
	ok, err := Exists(ctx, db, userID, courseID)
	if err != nil {
		return fmt.Errorf("verifying enrollment of user[%s] in course[%s]: %w", userID, courseID, err)
	}
	if ok {
		return nil
	}

	if _, err := Add(ctx, db, userID, courseID, now); err != nil {
		return fmt.Errorf("re-applying enrollment of user[%s] in course[%s]: %w", userID, courseID, err)
	}
	return nil
}

// Fail marks the purchase behind an unsuccessful payment as failed. Purchases
// that already reached a final status are left untouched.
func Fail(ctx context.Context, db sqlx.ExtContext, pay Payment, now time.Time) (bool, error) {
	p, found, err := resolve(ctx, db, pay)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return purchase.Fail(ctx, db, p.ID, now)
}

// Repair restores the enrollment of a user holding a completed purchase of the
// course. It reports whether the user is enrolled afterwards.
func Repair(ctx context.Context, db sqlx.ExtContext, userID, courseID string, now time.Time) (bool, error) {
	ok, err := Exists(ctx, db, userID, courseID)
	if err != nil {
		return false, fmt.Errorf("checking enrollment: %w", err)
	}
	if ok {
		return true, nil
	}

	paid, err := purchase.HasStatus(ctx, db, userID, courseID, purchase.Completed)
	if err != nil {
		return false, fmt.Errorf("checking completed purchases: %w", err)
	}
	if !paid {
		return false, nil
	}

	if _, err := Add(ctx, db, userID, courseID, now); err != nil {
		return false, fmt.Errorf("repairing enrollment: %w", err)
	}
	return true, nil
}

// Union merges enrolled course ids with paid-for ones, keeping first-seen order.
func Union(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range lists {
		for _, id := range l {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
