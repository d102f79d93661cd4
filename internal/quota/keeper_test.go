// Copyright 2026 fanjia1024
// Tests for admission control and usage settlement

package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"scholar-agent/internal/runtime/user"
	"scholar-agent/pkg/config"
	pkgerrors "scholar-agent/pkg/errors"
)

func testKeeper(t *testing.T, cfg config.QuotaConfig) (*Keeper, user.Store) {
	t.Helper()
	store := user.NewMemoryStore()
	k := NewKeeper(store, cfg, nil)
	return k, store
}

func TestAdmit_FreeQuota(t *testing.T) {
	ctx := context.Background()
	k, _ := testKeeper(t, config.QuotaConfig{FreeDailyLimit: 2, RequestsPerMinute: 6000, Burst: 100})

	if err := k.Admit(ctx, "u1"); err != nil {
		t.Fatalf("Admit #1: %v", err)
	}
	if err := k.Admit(ctx, "u1"); err != nil {
		t.Fatalf("Admit #2: %v", err)
	}
	if err := k.Admit(ctx, "u1"); !errors.Is(err, pkgerrors.ErrFreeQuotaExceeded) {
		t.Errorf("Admit #3: err = %v, want ErrFreeQuotaExceeded", err)
	}

	// 其他用户额度独立
	if err := k.Admit(ctx, "u2"); err != nil {
		t.Errorf("Admit u2: %v", err)
	}
}

func TestAdmit_DateReset(t *testing.T) {
	ctx := context.Background()
	k, _ := testKeeper(t, config.QuotaConfig{FreeDailyLimit: 1, RequestsPerMinute: 6000, Burst: 100})
	day := time.Date(2026, 8, 21, 23, 50, 0, 0, time.UTC)
	k.now = func() time.Time { return day }

	if err := k.Admit(ctx, "u1"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := k.Admit(ctx, "u1"); !errors.Is(err, pkgerrors.ErrFreeQuotaExceeded) {
		t.Fatalf("same day: err = %v, want ErrFreeQuotaExceeded", err)
	}

	day = day.Add(time.Hour) // 跨过 UTC 零点
	if err := k.Admit(ctx, "u1"); err != nil {
		t.Errorf("next day: %v", err)
	}
}

func TestAdmit_PaidBalance(t *testing.T) {
	ctx := context.Background()
	k, store := testKeeper(t, config.QuotaConfig{FreeDailyLimit: 1, RequestsPerMinute: 6000, Burst: 100})
	mode := user.ModePaid
	if _, err := store.UpdateProfile(ctx, "u1", user.ProfileUpdate{ModelMode: &mode}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if err := k.Admit(ctx, "u1"); !errors.Is(err, pkgerrors.ErrInsufficientBalance) {
		t.Errorf("zero balance: err = %v, want ErrInsufficientBalance", err)
	}

	if _, err := store.AddBalance(ctx, "u1", 5); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}
	// 付费档不占免费额度，连续准入不受 FreeDailyLimit=1 限制
	if err := k.Admit(ctx, "u1"); err != nil {
		t.Errorf("Admit #1: %v", err)
	}
	if err := k.Admit(ctx, "u1"); err != nil {
		t.Errorf("Admit #2: %v", err)
	}
	p, _ := store.GetProfile(ctx, "u1")
	if p.FreeQuotaToday != 0 {
		t.Errorf("paid admit consumed free quota: %+v", p)
	}
}

func TestAdmit_RateLimited(t *testing.T) {
	k, _ := testKeeper(t, config.QuotaConfig{FreeDailyLimit: 100, RequestsPerMinute: 60, Burst: 1})

	ctx := context.Background()
	if err := k.Admit(ctx, "u1"); err != nil {
		t.Fatalf("Admit #1: %v", err)
	}

	// 突发额度用尽后，第二次要等约一秒，超短超时先到
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := k.Admit(tctx, "u1"); err == nil {
		t.Error("expected rate limit wait to fail under a short deadline")
	}
}

func TestSettle_FreeRecordsUsage(t *testing.T) {
	ctx := context.Background()
	k, store := testKeeper(t, config.QuotaConfig{PaidPricePer1K: 0.02})

	usage, err := k.Settle(ctx, "u1", "sess-1", "agent", 800)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if usage.Cost != 0 || usage.ModelMode != user.ModeFree {
		t.Errorf("free usage: %+v", usage)
	}

	recs, _ := store.ListUsage(ctx, "u1", 10)
	if len(recs) != 1 || recs[0].TokenCount != 800 || recs[0].Mode != "agent" || recs[0].SessionID != "sess-1" {
		t.Errorf("usage records: %+v", recs)
	}
}

func TestSettle_PaidDebits(t *testing.T) {
	ctx := context.Background()
	k, store := testKeeper(t, config.QuotaConfig{PaidPricePer1K: 0.02})
	mode := user.ModePaid
	store.UpdateProfile(ctx, "u1", user.ProfileUpdate{ModelMode: &mode})
	store.AddBalance(ctx, "u1", 1)

	usage, err := k.Settle(ctx, "u1", "sess-1", "normal", 5000)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if usage.Cost != 0.1 {
		t.Errorf("cost = %v, want 0.1", usage.Cost)
	}
	if usage.Balance != 0.9 {
		t.Errorf("balance = %v, want 0.9", usage.Balance)
	}

	recs, _ := store.ListUsage(ctx, "u1", 10)
	if len(recs) != 1 || recs[0].Cost != 0.1 {
		t.Errorf("usage records: %+v", recs)
	}
}

func TestSettle_DebitClampedToBalance(t *testing.T) {
	ctx := context.Background()
	k, store := testKeeper(t, config.QuotaConfig{PaidPricePer1K: 1})
	mode := user.ModePaid
	store.UpdateProfile(ctx, "u1", user.ProfileUpdate{ModelMode: &mode})
	store.AddBalance(ctx, "u1", 0.5)

	// 本轮名义费用 2，余额只有 0.5：扣到零，账上记足额费用
	usage, err := k.Settle(ctx, "u1", "", "normal", 2000)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if usage.Cost != 2 {
		t.Errorf("cost = %v, want 2", usage.Cost)
	}
	if usage.Balance != 0 {
		t.Errorf("balance = %v, want 0", usage.Balance)
	}
	if err := k.Admit(ctx, "u1"); !errors.Is(err, pkgerrors.ErrInsufficientBalance) {
		t.Errorf("next admit: err = %v, want ErrInsufficientBalance", err)
	}
}

func TestCost(t *testing.T) {
	cases := []struct {
		tokens int
		price  float64
		want   float64
	}{
		{1000, 0.02, 0.02},
		{500, 0.02, 0.01},
		{0, 0.02, 0},
		{1000, 0, 0},
		{-5, 0.02, 0},
	}
	for _, tc := range cases {
		if got := Cost(tc.tokens, tc.price); got != tc.want {
			t.Errorf("Cost(%d, %v) = %v, want %v", tc.tokens, tc.price, got, tc.want)
		}
	}
}
