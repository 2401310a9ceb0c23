package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryCachePutGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on empty cache: ok=%v err=%v", ok, err)
	}

	if err := c.Put(ctx, "run-1", []byte("report-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, err := c.Get(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("Get after Put: ok=%v err=%v", ok, err)
	}
	if string(data) != "report-bytes" {
		t.Errorf("data = %q, want %q", data, "report-bytes")
	}
}

func TestMemoryCachePutReportGetReport(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type payload struct {
		RunID string `json:"run_id"`
		Score float64 `json:"score"`
	}
	in := payload{RunID: "run-2", Score: 0.77}
	if err := PutReport(ctx, c, "run-2", in); err != nil {
		t.Fatalf("PutReport: %v", err)
	}

	var out payload
	ok, err := GetReport(ctx, c, "run-2", &out)
	if err != nil || !ok {
		t.Fatalf("GetReport: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Errorf("GetReport roundtrip = %+v, want %+v", out, in)
	}
}

func TestRedisCachePutGet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	cache, err := NewRedisCache(RedisOptions{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, ok, err := cache.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on empty cache: ok=%v err=%v", ok, err)
	}

	if err := cache.Put(ctx, "run-3", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok, err := cache.Get(ctx, "run-3")
	if err != nil || !ok {
		t.Fatalf("Get after Put: ok=%v err=%v", ok, err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want %q", data, "hello")
	}
}
