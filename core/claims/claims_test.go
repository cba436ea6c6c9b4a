package claims

import (
	"context"
	"errors"
	"testing"
)

func TestClaims(t *testing.T) {
	ctx := context.Background()

	if _, err := Get(ctx); !errors.Is(err, ErrMissing) {
		t.Fatalf("Get on empty context: got %v, want ErrMissing", err)
	}
	if IsEducator(ctx) {
		t.Fatal("anonymous caller must not be an educator")
	}

	ctx = Set(ctx, Claims{UserID: "user_1", Role: RoleEducator})
	if !IsEducator(ctx) {
		t.Fatal("expected educator role")
	}
	if !IsUser(ctx, "user_1") || IsUser(ctx, "user_2") {
		t.Fatal("IsUser must match the subject only")
	}
}
