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

package user

import (
	"context"
	"sort"
	"sync"
	"time"

	pkgerrors "scholar-agent/pkg/errors"
)

// Store 用户存储抽象。额度与余额的检查和变更由实现原子完成，
// 调用方不做读改写。
type Store interface {
	CreateAuthUser(ctx context.Context, u *AuthUser) error
	// GetAuthUser 不存在时返回 pkgerrors.ErrNotFound
	GetAuthUser(ctx context.Context, username string) (*AuthUser, error)
	// GetProfile 档案不存在时按默认值建立，首次登录即可用
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error)
	// AddBalance 充值入账，返回更新后的档案
	AddBalance(ctx context.Context, userID string, amount float64) (*Profile, error)
	// ConsumeFree 占用一次当日免费额度。date 与档案记录的日期不同则先清零；
	// 已达 limit 返回 pkgerrors.ErrFreeQuotaExceeded，计数不变。
	ConsumeFree(ctx context.Context, userID, date string, limit int) (used int, err error)
	// DebitBalance 扣减余额，不足时返回 pkgerrors.ErrInsufficientBalance，不做部分扣减
	DebitBalance(ctx context.Context, userID string, cost float64) (balance float64, err error)
	AppendUsage(ctx context.Context, rec *UsageRecord) error
	// ListUsage 按时间倒序返回最近的用量记录
	ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error)
	Close() error
}

// MemoryStore 内存实现（map + mutex），测试与本地试用
type MemoryStore struct {
	mu       sync.RWMutex
	auth     map[string]*AuthUser
	profiles map[string]*Profile
	usage    []*UsageRecord
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auth:     make(map[string]*AuthUser),
		profiles: make(map[string]*Profile),
	}
}

func (m *MemoryStore) CreateAuthUser(ctx context.Context, u *AuthUser) error {
	if u == nil || u.Username == "" {
		return pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auth[u.Username]; ok {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "用户名已存在")
	}
	cp := *u
	m.auth[u.Username] = &cp
	return nil
}

func (m *MemoryStore) GetAuthUser(ctx context.Context, username string) (*AuthUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.auth[username]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.profile(userID)
	return &cp, nil
}

// profile 取或建档案，调用方需持写锁
func (m *MemoryStore) profile(userID string) *Profile {
	p, ok := m.profiles[userID]
	if !ok {
		p = defaultProfile(userID)
		m.profiles[userID] = p
	}
	return p
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error) {
	if userID == "" {
		return nil, pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profile(userID)
	p.apply(upd)
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) AddBalance(ctx context.Context, userID string, amount float64) (*Profile, error) {
	if userID == "" || amount <= 0 {
		return nil, pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profile(userID)
	p.Balance += amount
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ConsumeFree(ctx context.Context, userID, date string, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profile(userID)
	if p.FreeQuotaDate != date {
		p.FreeQuotaDate = date
		p.FreeQuotaToday = 0
	}
	if p.FreeQuotaToday >= limit {
		return p.FreeQuotaToday, pkgerrors.ErrFreeQuotaExceeded
	}
	p.FreeQuotaToday++
	p.UpdatedAt = time.Now()
	return p.FreeQuotaToday, nil
}

func (m *MemoryStore) DebitBalance(ctx context.Context, userID string, cost float64) (float64, error) {
	if cost < 0 {
		return 0, pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profile(userID)
	if p.Balance < cost {
		return p.Balance, pkgerrors.ErrInsufficientBalance
	}
	p.Balance -= cost
	p.UpdatedAt = time.Now()
	return p.Balance, nil
}

func (m *MemoryStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec == nil || rec.UserID == "" {
		return pkgerrors.ErrInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.usage = append(m.usage, &cp)
	return nil
}

func (m *MemoryStore) ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*UsageRecord
	for _, rec := range m.usage {
		if rec.UserID != userID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
