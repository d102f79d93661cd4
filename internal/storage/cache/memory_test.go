package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after Delete: err = %v, want ErrMiss", err)
	}
	// 删除不存在的键不报错，写方无脑失效即可
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryStore_Get_Miss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	var v string
	if err := s.Get(ctx, "missing", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get missing: err = %v, want ErrMiss", err)
	}
}

func TestMemoryStore_StructRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	type row struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	in := []row{{ID: "s1", Title: "文献综述"}, {ID: "s2", Title: "蒸馏进展"}}
	if err := s.Set(ctx, "sessions:u1", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var out []row
	if err := s.Get(ctx, "sessions:u1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(out) != 2 || out[0].ID != "s1" || out[1].Title != "蒸馏进展" {
		t.Errorf("round trip: %+v", out)
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	var v string
	if err := s.Get(ctx, "k", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get expired: err = %v, want ErrMiss", err)
	}
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists expired: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists missing: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "k", "v", 0)
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k1", "v1", 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after Clear: err = %v, want ErrMiss", err)
	}
}
