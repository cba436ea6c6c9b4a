package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/edemy/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (User, error) {
	const q = `
	SELECT
		u.user_id, u.name, u.email, u.image_url, u.created_at, u.updated_at
	FROM users u
	WHERE u.user_id = $1`

	var u User
	if err := sqlx.GetContext(ctx, db, &u, q, id); err != nil {
		return User{}, err
	}
	return u, nil
}

// Create inserts u and fails with database.ErrDBDuplicate when the id exists.
func Create(ctx context.Context, db sqlx.ExtContext, u User) error {
	const q = `
	INSERT INTO users
		(user_id, name, email, image_url, created_at, updated_at)
	VALUES
		(:user_id, :name, :email, :image_url, :created_at, :updated_at)`

	if _, err := database.NamedExecContext(ctx, db, q, u); err != nil {
		return err
	}
	return nil
}

// Upsert creates the user or refreshes its profile fields.
func Upsert(ctx context.Context, db sqlx.ExtContext, up UserUp, now time.Time) error {
	const q = `
	INSERT INTO users
		(user_id, name, email, image_url, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, $5, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		name = EXCLUDED.name,
		email = EXCLUDED.email,
		image_url = EXCLUDED.image_url,
		updated_at = EXCLUDED.updated_at`

	if _, err := db.ExecContext(ctx, q, up.ID, up.Name, up.Email, up.ImageURL, now); err != nil {
		return err
	}
	return nil
}

// Update changes the profile of an existing user.
func Update(ctx context.Context, db sqlx.ExtContext, up UserUp, now time.Time) error {
	const q = `
	UPDATE users SET
		name = $2,
		email = $3,
		image_url = $4,
		updated_at = $5
	WHERE user_id = $1`

	res, err := db.ExecContext(ctx, q, up.ID, up.Name, up.Email, up.ImageURL, now)
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

func Delete(ctx context.Context, db sqlx.ExtContext, id string) error {
	const q = `DELETE FROM users WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, id); err != nil {
		return err
	}
	return nil
}

// Ensure returns the stored user, creating it from up when it does not exist yet.
func Ensure(ctx context.Context, db sqlx.ExtContext, up UserUp) (User, error) {
	u, err := Fetch(ctx, db, up.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, database.ErrDBNotFound) {
		return User{}, fmt.Errorf("fetching user[%s]: %w", up.ID, err)
	}

	now := time.Now().UTC()
	u = User{
		ID:        up.ID,
		Name:      up.Name,
		Email:     up.Email,
		ImageURL:  up.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := Create(ctx, db, u); err != nil {
		if errors.Is(err, database.ErrDBDuplicate) {
			return Fetch(ctx, db, up.ID)
		}
		return User{}, fmt.Errorf("creating user[%s]: %w", up.ID, err)
	}
	return u, nil
}

// Summary is the public display data of a user.
type Summary struct {
	ID       string `json:"id" db:"user_id"`
	Name     string `json:"name" db:"name"`
	ImageURL string `json:"imageUrl" db:"image_url"`
}

func FetchSummaries(ctx context.Context, db sqlx.ExtContext, ids []string) (map[string]Summary, error) {
	const q = `
	SELECT user_id, name, image_url
	FROM users
	WHERE user_id = ANY($1)`

	var rows []Summary
	if err := sqlx.SelectContext(ctx, db, &rows, q, pq.StringArray(ids)); err != nil {
		return nil, err
	}

	out := make(map[string]Summary, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

func Count(ctx context.Context, db sqlx.ExtContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db, &n, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}
