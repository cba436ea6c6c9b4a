package rate

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := 20 * time.Millisecond
	lim := NewLimiter(ctx, 1, interval, time.Hour)

	tooshort := 1 * time.Millisecond

	client := "user_2abc"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := lim.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := "user_2abc"
	burst := 5
	interval := 200 * time.Millisecond
	lim := NewLimiter(ctx, burst, interval, time.Hour)

	for i := 0; i < burst; i++ {
		if !lim.Check(client) {
			t.Fatalf("request %d within burst was rejected", i)
		}
	}
	if lim.Check(client) {
		t.Fatal("request beyond burst was allowed")
	}
	if !lim.Check("another_user") {
		t.Fatal("clients must not share buckets")
	}
}

func TestLimiterEvict(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lim := NewLimiter(ctx, 1, time.Hour, time.Minute)
	lim.Check("idle")

	lim.evict(time.Now().Add(2 * time.Minute))

	if !lim.Check("idle") {
		t.Fatal("evicted client should start with a fresh bucket")
	}
}
