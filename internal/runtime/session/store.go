// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "scholar-agent/pkg/errors"
)

// Store 会话与消息的存储抽象。实现：内存（测试）、SQLite（单机）、Postgres（生产）。
// 找不到的会话返回 pkgerrors.ErrNotFound。
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessions 按最近更新倒序返回该用户的会话
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	// DeleteSession 连同消息一起删除
	DeleteSession(ctx context.Context, id string) error
	// AppendMessage 追加消息并刷新会话的 UpdatedAt
	AppendMessage(ctx context.Context, m *Message) error
	// ListMessages 按时间正序返回会话的全部消息
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)
	Close() error
}

// MemoryStore 内存实现（map + mutex），测试与本地试用
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if userID != "" && s.UserID != userID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	s.Title = title
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.SessionID == "" {
		return pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.messages[sessionID]
	out := make([]*Message, len(list))
	for i, msg := range list {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
