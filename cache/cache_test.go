package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/edemy/cache"
)

type entry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0)
	defer c.Close()

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	var got []entry
	found, err := c.Get(ctx, "catalog:published", &got)
	if err != nil || found {
		t.Fatalf("expected a miss, got found=%t err=%v", found, err)
	}

	exp := []entry{{ID: "1", Title: "Go"}, {ID: "2", Title: "SQL"}}
	if err := c.Set(ctx, "catalog:published", exp, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	found, err = c.Get(ctx, "catalog:published", &got)
	if err != nil || !found {
		t.Fatalf("expected a hit, got found=%t err=%v", found, err)
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("cached value mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "catalog:published", &got)
	if err != nil || found {
		t.Fatalf("expected the key to expire, got found=%t err=%v", found, err)
	}

	if err := mr.Set("broken", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, "broken", &got); err == nil {
		t.Error("expected a decoding error")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0)
	defer c.Close()
	mr.Close()

	var got []entry
	if _, err := c.Get(context.Background(), "catalog:published", &got); err == nil {
		t.Error("expected an error from a closed server")
	}
}
