// Copyright 2026 fanjia1024
// Store contract tests, run against every backend

package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scholar-agent/internal/task"
	pkgerrors "scholar-agent/pkg/errors"
)

// 每个后端都要过同一套契约。Postgres 需要外部实例，不在单元测试里跑。
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := New("", "u1")
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			got, err := store.GetSession(ctx, s.ID)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.ID != s.ID || got.UserID != "u1" {
				t.Errorf("GetSession: %+v", got)
			}

			if err := store.UpdateSessionTitle(ctx, s.ID, "文献综述"); err != nil {
				t.Fatalf("UpdateSessionTitle: %v", err)
			}
			got, _ = store.GetSession(ctx, s.ID)
			if got.Title != "文献综述" {
				t.Errorf("title = %q", got.Title)
			}

			if err := store.DeleteSession(ctx, s.ID); err != nil {
				t.Fatalf("DeleteSession: %v", err)
			}
			if _, err := store.GetSession(ctx, s.ID); !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("GetSession after delete: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("GetSession(missing) = %v, want ErrNotFound", err)
			}
			if err := store.UpdateSessionTitle(ctx, "missing", "t"); !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("UpdateSessionTitle(missing) = %v, want ErrNotFound", err)
			}
			if err := store.DeleteSession(ctx, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("DeleteSession(missing) = %v, want ErrNotFound", err)
			}
			err := store.AppendMessage(ctx, NewMessage("missing", RoleUser, "hi"))
			if !errors.Is(err, pkgerrors.ErrNotFound) {
				t.Errorf("AppendMessage(missing session) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_MessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := New("", "u1")
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			user := NewMessage(s.ID, RoleUser, "找三篇关于蒸馏的论文")
			user.CreatedAt = time.Now().Add(-time.Minute)
			if err := store.AppendMessage(ctx, user); err != nil {
				t.Fatalf("AppendMessage(user): %v", err)
			}

			assistant := NewMessage(s.ID, RoleAssistant, "找到了，见下。")
			assistant.Metadata = &Metadata{
				ToolsUsed:    []string{"search"},
				TaskPlan:     []*task.Step{{ID: "s1", Action: "检索", Status: task.StepDone, Progress: 1, ToolName: "search"}},
				AgentThought: "先检索再筛选",
				StepThoughts: map[string]string{"s1": "命中 3 篇"},
				Timeline: []task.TimelineEntry{
					{Type: task.TimelineStepStart, StepID: "s1", ToolName: "search", Action: "检索"},
					{Type: task.TimelineStepDone, StepID: "s1", Result: "命中 3 篇"},
				},
			}
			if err := store.AppendMessage(ctx, assistant); err != nil {
				t.Fatalf("AppendMessage(assistant): %v", err)
			}

			msgs, err := store.ListMessages(ctx, s.ID)
			if err != nil {
				t.Fatalf("ListMessages: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("messages = %d, want 2", len(msgs))
			}
			if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
				t.Errorf("order: %s, %s", msgs[0].Role, msgs[1].Role)
			}
			if msgs[0].Metadata != nil {
				t.Error("user message must not carry metadata")
			}

			meta := msgs[1].Metadata
			if meta == nil {
				t.Fatal("assistant metadata lost in round trip")
			}
			if len(meta.TaskPlan) != 1 || meta.TaskPlan[0].ID != "s1" || meta.TaskPlan[0].Status != task.StepDone {
				t.Errorf("task plan: %+v", meta.TaskPlan)
			}
			if meta.StepThoughts["s1"] != "命中 3 篇" {
				t.Errorf("step thoughts: %+v", meta.StepThoughts)
			}
			if len(meta.Timeline) != 2 || meta.Timeline[0].Type != task.TimelineStepStart {
				t.Errorf("timeline: %+v", meta.Timeline)
			}
			if meta.AgentThought != "先检索再筛选" {
				t.Errorf("agent thought: %q", meta.AgentThought)
			}
		})
	}
}

func TestStore_ListSessionsOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			old := New("", "u1")
			old.CreatedAt = time.Now().Add(-time.Hour)
			old.UpdatedAt = old.CreatedAt
			if err := store.CreateSession(ctx, old); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			fresh := New("", "u1")
			fresh.CreatedAt = time.Now().Add(-30 * time.Minute)
			fresh.UpdatedAt = fresh.CreatedAt
			if err := store.CreateSession(ctx, fresh); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			other := New("", "u2")
			if err := store.CreateSession(ctx, other); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			list, err := store.ListSessions(ctx, "u1")
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("sessions = %d, want 2 (user filter)", len(list))
			}
			if list[0].ID != fresh.ID {
				t.Errorf("most recently updated should come first, got %s", list[0].ID)
			}

			// 给老会话追加消息会把它顶到最前
			if err := store.AppendMessage(ctx, NewMessage(old.ID, RoleUser, "hi")); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
			list, _ = store.ListSessions(ctx, "u1")
			if list[0].ID != old.ID {
				t.Errorf("appending a message should bump the session, got %s first", list[0].ID)
			}
		})
	}
}
