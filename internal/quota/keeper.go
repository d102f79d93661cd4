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

// Package quota 对话准入与用量结算。
// 免费档按日计数，付费档按 token 扣余额；每用户再叠一层请求限流做平滑。
package quota

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scholar-agent/internal/runtime/user"
	"scholar-agent/internal/task"
	"scholar-agent/pkg/config"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

// 未配置时的默认值
const (
	defaultFreeDailyLimit    = 20
	defaultRequestsPerMinute = 30.0
	defaultBurst             = 5
)

// Keeper 每个用户一个限流器，按需创建；额度与余额的原子变更在 user.Store 里
type Keeper struct {
	users user.Store
	cfg   config.QuotaConfig
	log   *log.Logger

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// NewKeeper 创建 Keeper。lg 可为 nil。
func NewKeeper(users user.Store, cfg config.QuotaConfig, lg *log.Logger) *Keeper {
	if lg == nil {
		lg = log.Discard()
	}
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = defaultFreeDailyLimit
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	return &Keeper{
		users:    users,
		cfg:      cfg,
		log:      lg,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// limiter 取用户的限流器，首次访问时创建
func (k *Keeper) limiter(userID string) *rate.Limiter {
	k.mu.RLock()
	lim, ok := k.limiters[userID]
	k.mu.RUnlock()
	if ok {
		return lim
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if lim, ok = k.limiters[userID]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(k.cfg.RequestsPerMinute/60.0), k.cfg.Burst)
	k.limiters[userID] = lim
	return lim
}

// today 额度日期键，按 UTC 切天
func (k *Keeper) today() string {
	return k.now().UTC().Format("2006-01-02")
}

// Admit 一轮对话的准入检查，失败即 402，一帧都不发。
// 免费档占用一次当日额度；付费档要求余额为正，费用在 Settle 时扣。
func (k *Keeper) Admit(ctx context.Context, userID string) error {
	if userID == "" {
		return pkgerrors.ErrInvalidArg
	}
	if err := k.limiter(userID).Wait(ctx); err != nil {
		return pkgerrors.Wrap(err, "request rate limit wait")
	}

	p, err := k.users.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if p.ModelMode == user.ModePaid {
		if p.Balance <= 0 {
			return pkgerrors.ErrInsufficientBalance
		}
		return nil
	}

	used, err := k.users.ConsumeFree(ctx, userID, k.today(), k.cfg.FreeDailyLimit)
	if err != nil {
		return err
	}
	k.log.Debug("free quota consumed", "user_id", userID, "used", used, "limit", k.cfg.FreeDailyLimit)
	return nil
}

// Settle 结算一轮：付费档扣费并记账，返回喂给 cost 帧的用量信息。
// 结算失败不应打断已完成的回答，调用方只记日志。
func (k *Keeper) Settle(ctx context.Context, userID, sessionID, mode string, tokens int) (*task.Usage, error) {
	p, err := k.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	var cost float64
	balance := p.Balance
	if p.ModelMode == user.ModePaid {
		cost = Cost(tokens, k.cfg.PaidPricePer1K)
		debit := cost
		if debit > p.Balance {
			// 本轮花超了余额，扣到零为止，下一轮准入会被挡下
			debit = p.Balance
		}
		if balance, err = k.users.DebitBalance(ctx, userID, debit); err != nil {
			k.log.Warn("balance debit failed", "user_id", userID, "cost", cost, "err", err)
			balance = p.Balance
		}
	}

	rec := user.NewUsageRecord(userID, sessionID, mode, cost, tokens)
	if err := k.users.AppendUsage(ctx, rec); err != nil {
		return nil, pkgerrors.Wrap(err, "append usage record")
	}
	return &task.Usage{Cost: cost, Balance: balance, ModelMode: p.ModelMode}, nil
}

// Cost tokens 换算费用
func Cost(tokens int, pricePer1K float64) float64 {
	if tokens <= 0 || pricePer1K <= 0 {
		return 0
	}
	return float64(tokens) / 1000.0 * pricePer1K
}
