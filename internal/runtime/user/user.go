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

// Package user 用户档案、登录凭证与用量账本的持久化。
// 免费额度的当日计数记在档案上，跨天自动清零；付费余额由用量结算扣减。
package user

import (
	"time"

	"github.com/google/uuid"
)

// 模型档位
const (
	ModeFree = "free"
	ModePaid = "paid"
)

// Profile 用户档案。user_id 即注册用户名。
type Profile struct {
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	AvatarURL      string    `json:"avatar_url"`
	ResearchField  string    `json:"research_field"`
	KnowledgeLevel string    `json:"knowledge_level"`
	Institution    string    `json:"institution"`
	Bio            string    `json:"bio"`
	ModelMode      string    `json:"model_mode"`
	Balance        float64   `json:"balance"`
	FreeQuotaToday int       `json:"free_quota_today"`
	FreeQuotaDate  string    `json:"free_quota_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileUpdate 档案部分更新。nil 字段不动，空串是合法的清空。
type ProfileUpdate struct {
	DisplayName    *string `json:"display_name,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	ResearchField  *string `json:"research_field,omitempty"`
	KnowledgeLevel *string `json:"knowledge_level,omitempty"`
	Institution    *string `json:"institution,omitempty"`
	Bio            *string `json:"bio,omitempty"`
	ModelMode      *string `json:"model_mode,omitempty"`
}

// AuthUser 登录凭证
type AuthUser struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageRecord 一次对话的用量记录
type UsageRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Mode       string    `json:"mode"`
	Cost       float64   `json:"cost"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUsageRecord 创建用量记录
func NewUsageRecord(userID, sessionID, mode string, cost float64, tokens int) *UsageRecord {
	return &UsageRecord{
		ID:         "usage-" + uuid.NewString(),
		UserID:     userID,
		SessionID:  sessionID,
		Mode:       mode,
		Cost:       cost,
		TokenCount: tokens,
		CreatedAt:  time.Now(),
	}
}

// defaultProfile 首次访问时建立的默认档案
func defaultProfile(userID string) *Profile {
	display := userID
	if r := []rune(userID); len(r) > 8 {
		display = string(r[:8])
	}
	now := time.Now()
	return &Profile{
		UserID:         userID,
		DisplayName:    "User_" + display,
		KnowledgeLevel: "intermediate",
		ModelMode:      ModeFree,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// apply 把非 nil 的更新字段落到档案上
func (p *Profile) apply(upd ProfileUpdate) {
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.AvatarURL != nil {
		p.AvatarURL = *upd.AvatarURL
	}
	if upd.ResearchField != nil {
		p.ResearchField = *upd.ResearchField
	}
	if upd.KnowledgeLevel != nil {
		p.KnowledgeLevel = *upd.KnowledgeLevel
	}
	if upd.Institution != nil {
		p.Institution = *upd.Institution
	}
	if upd.Bio != nil {
		p.Bio = *upd.Bio
	}
	if upd.ModelMode != nil {
		p.ModelMode = *upd.ModelMode
	}
	p.UpdatedAt = time.Now()
}
