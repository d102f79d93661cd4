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
	"errors"

	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

// Manager 会话生命周期管理：创建、查找、记录消息、自动起标题
type Manager struct {
	store Store
	log   *log.Logger
}

// NewManager 创建 Manager。lg 可为 nil。
func NewManager(store Store, lg *log.Logger) *Manager {
	if lg == nil {
		lg = log.Discard()
	}
	return &Manager{store: store, log: lg}
}

// Store 暴露底层存储（只读用途，例如网关直接列消息）
func (m *Manager) Store() Store {
	return m.store
}

// Create 新建会话
func (m *Manager) Create(ctx context.Context, userID string) (*Session, error) {
	s := New("", userID)
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	m.log.Info("session created", "session_id", s.ID, "user_id", userID)
	return s, nil
}

// Get 按 id 取会话
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.GetSession(ctx, id)
}

// GetOrCreate id 为空时新建；id 不存在时按该 id 建（恢复老客户端带来的会话号）
func (m *Manager) GetOrCreate(ctx context.Context, id, userID string) (*Session, error) {
	if id == "" {
		return m.Create(ctx, userID)
	}
	s, err := m.store.GetSession(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}
	s = New(id, userID)
	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// List 按最近更新倒序列出用户会话
func (m *Manager) List(ctx context.Context, userID string) ([]*Session, error) {
	return m.store.ListSessions(ctx, userID)
}

// Delete 删除会话及其消息
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.DeleteSession(ctx, id)
}

// Messages 返回会话全部消息（按时间正序）
func (m *Manager) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	return m.store.ListMessages(ctx, sessionID)
}

// RecordUserMessage 记录一条用户消息；会话还没有标题时用这条消息起一个
func (m *Manager) RecordUserMessage(ctx context.Context, sessionID, content string) (*Message, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msg := NewMessage(sessionID, RoleUser, content)
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	if s.Title == "" {
		if err := m.store.UpdateSessionTitle(ctx, sessionID, TitleFromContent(content)); err != nil {
			// 标题只是枝节，不让它挡住对话
			m.log.Warn("auto-title failed", "session_id", sessionID, "err", err)
		}
	}
	return msg, nil
}
