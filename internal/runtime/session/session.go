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

// Package session 会话与消息的持久化，以及流式引擎与持久层之间的桥：
// 一轮对话终结时把定稿的回答与任务快照落成一条 assistant 消息，
// 重新打开会话时从最近的快照恢复任务展示。
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session 一个会话：一位用户与助手的一串对话。
// 消息不内嵌，按需通过 Store.ListMessages 拉取（侧栏列表不该背着全部历史）。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New 创建新 Session（id 为空时自动生成）
func New(id, userID string) *Session {
	now := time.Now()
	if id == "" {
		id = "session-" + uuid.New().String()
	}
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// titleRuneLimit 自动标题截断长度（按字符数，不是字节数）
const titleRuneLimit = 50

// TitleFromContent 从首条用户消息生成会话标题：超长按字符截断加省略号
func TitleFromContent(content string) string {
	runes := []rune(content)
	if len(runes) <= titleRuneLimit {
		return content
	}
	return string(runes[:titleRuneLimit]) + "..."
}
