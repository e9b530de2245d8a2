package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCacheHelper(client, "exam:"), mr
}

func TestCacheHelperSetGet(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	type payload struct {
		ID    uint   `json:"id"`
		Title string `json:"title"`
	}

	if err := helper.Set(ctx, "id:42", payload{ID: 42, Title: "Midterm"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if err := helper.Get(ctx, "id:42", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != 42 || got.Title != "Midterm" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestCacheHelperGetMiss(t *testing.T) {
	helper, _ := newTestHelper(t)

	var dest map[string]any
	if err := helper.Get(context.Background(), "missing", &dest); err != ErrCacheNotFound {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelperNilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "exam:")
	ctx := context.Background()

	if err := helper.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set with nil client should be a no-op, got %v", err)
	}

	var dest string
	if err := helper.Get(ctx, "k", &dest); err != ErrCacheNotAvailable {
		t.Fatalf("expected ErrCacheNotAvailable, got %v", err)
	}
}

func TestCacheHelperInvalidatePattern(t *testing.T) {
	helper, mr := newTestHelper(t)
	ctx := context.Background()

	for _, key := range []string{"windows:1", "windows:2", "id:7"} {
		if err := helper.Set(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}

	if err := helper.InvalidatePattern(ctx, "windows:*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	if mr.Exists("exam:windows:1") || mr.Exists("exam:windows:2") {
		t.Fatal("pattern keys survived invalidation")
	}
	if !mr.Exists("exam:id:7") {
		t.Fatal("unrelated key was invalidated")
	}
}

func TestCacheOrExecuteFetchesOnMiss(t *testing.T) {
	helper, _ := newTestHelper(t)
	ctx := context.Background()

	calls := 0
	var got string
	err := helper.CacheOrExecute(ctx, "k", &got, time.Minute, func() (interface{}, error) {
		calls++
		return "fetched", nil
	})
	if err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if got != "fetched" || calls != 1 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestCacheManagerInvalidateResult(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cm := NewCacheManager(client)
	ctx := context.Background()

	if err := cm.Result.Set(ctx, "id:R1", "envelope", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cm.Result.Set(ctx, "answers:R1", "answers", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cm.Result.Set(ctx, "id:R2", "other", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	cm.InvalidateResult(ctx, "R1")

	if mr.Exists("result:id:R1") {
		t.Fatal("result envelope key survived invalidation")
	}
	if mr.Exists("result:answers:R1") {
		t.Fatal("result answers key survived invalidation")
	}
	if !mr.Exists("result:id:R2") {
		t.Fatal("unrelated result key was invalidated")
	}
}
