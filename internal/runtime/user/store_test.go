// Copyright 2026 fanjia1024
// Store contract tests, run against every backend

package user

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	pkgerrors "scholar-agent/pkg/errors"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_AuthUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			u := &AuthUser{Username: "alice", PasswordHash: HashPassword("alice", "pw")}
			if err := store.CreateAuthUser(ctx, u); err != nil {
				t.Fatalf("CreateAuthUser: %v", err)
			}
			got, err := store.GetAuthUser(ctx, "alice")
			if err != nil {
				t.Fatalf("GetAuthUser: %v", err)
			}
			if got.PasswordHash != u.PasswordHash {
				t.Errorf("hash mismatch: %q", got.PasswordHash)
			}
			if err := store.CreateAuthUser(ctx, u); !errors.Is(err, pkgerrors.ErrInvalidArg) {
				t.Errorf("duplicate register: err = %v, want ErrInvalidArg", err)
			}
			if _, err := store.GetAuthUser(ctx, "bob"); !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("missing user: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ProfileDefaultsAndUpdate(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.GetProfile(ctx, "researcher01")
			if err != nil {
				t.Fatalf("GetProfile: %v", err)
			}
			if p.DisplayName != "User_research" || p.KnowledgeLevel != "intermediate" || p.ModelMode != ModeFree {
				t.Errorf("default profile: %+v", p)
			}
			if p.Balance != 0 || p.FreeQuotaToday != 0 {
				t.Errorf("fresh profile quota: %+v", p)
			}

			field := "自然语言处理"
			mode := ModePaid
			p, err = store.UpdateProfile(ctx, "researcher01", ProfileUpdate{
				ResearchField: &field,
				ModelMode:     &mode,
			})
			if err != nil {
				t.Fatalf("UpdateProfile: %v", err)
			}
			if p.ResearchField != field || p.ModelMode != ModePaid {
				t.Errorf("updated profile: %+v", p)
			}
			// 未提交的字段保持原值
			if p.DisplayName != "User_research" {
				t.Errorf("display name changed unexpectedly: %q", p.DisplayName)
			}

			got, _ := store.GetProfile(ctx, "researcher01")
			if got.ResearchField != field {
				t.Errorf("update not persisted: %+v", got)
			}
		})
	}
}

func TestStore_FreeQuota(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			const limit = 3
			for i := 1; i <= limit; i++ {
				used, err := store.ConsumeFree(ctx, "u1", "2026-08-21", limit)
				if err != nil {
					t.Fatalf("ConsumeFree #%d: %v", i, err)
				}
				if used != i {
					t.Errorf("ConsumeFree #%d: used = %d", i, used)
				}
			}
			if _, err := store.ConsumeFree(ctx, "u1", "2026-08-21", limit); !errors.Is(err, pkgerrors.ErrFreeQuotaExceeded) {
				t.Errorf("over limit: err = %v, want ErrFreeQuotaExceeded", err)
			}

			// 跨天清零
			used, err := store.ConsumeFree(ctx, "u1", "2026-08-22", limit)
			if err != nil {
				t.Fatalf("ConsumeFree next day: %v", err)
			}
			if used != 1 {
				t.Errorf("next day used = %d, want 1", used)
			}
		})
	}
}

func TestStore_Balance(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			p, err := store.AddBalance(ctx, "u1", 10)
			if err != nil {
				t.Fatalf("AddBalance: %v", err)
			}
			if p.Balance != 10 {
				t.Errorf("balance after recharge = %v", p.Balance)
			}

			balance, err := store.DebitBalance(ctx, "u1", 2.5)
			if err != nil {
				t.Fatalf("DebitBalance: %v", err)
			}
			if balance != 7.5 {
				t.Errorf("balance after debit = %v", balance)
			}

			// 余额不足不做部分扣减
			balance, err = store.DebitBalance(ctx, "u1", 100)
			if !errors.Is(err, pkgerrors.ErrInsufficientBalance) {
				t.Errorf("insufficient: err = %v", err)
			}
			if balance != 7.5 {
				t.Errorf("balance must be untouched, got %v", balance)
			}

			if _, err := store.AddBalance(ctx, "u1", -5); !errors.Is(err, pkgerrors.ErrInvalidArg) {
				t.Errorf("negative recharge: err = %v", err)
			}
		})
	}
}

func TestStore_Usage(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				rec := NewUsageRecord("u1", "sess-1", "normal", 0.01, 120)
				if err := store.AppendUsage(ctx, rec); err != nil {
					t.Fatalf("AppendUsage: %v", err)
				}
			}
			if err := store.AppendUsage(ctx, NewUsageRecord("u2", "", "agent", 0, 80)); err != nil {
				t.Fatalf("AppendUsage u2: %v", err)
			}

			recs, err := store.ListUsage(ctx, "u1", 10)
			if err != nil {
				t.Fatalf("ListUsage: %v", err)
			}
			if len(recs) != 3 {
				t.Fatalf("usage records = %d, want 3", len(recs))
			}
			for _, rec := range recs {
				if rec.UserID != "u1" || rec.Cost != 0.01 || rec.TokenCount != 120 {
					t.Errorf("record: %+v", rec)
				}
			}

			recs, _ = store.ListUsage(ctx, "u1", 2)
			if len(recs) != 2 {
				t.Errorf("limited list = %d, want 2", len(recs))
			}
		})
	}
}
