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

package cache

import (
	"context"
	"fmt"

	"scholar-agent/pkg/config"
	"scholar-agent/pkg/log"
)

// NewCache 根据配置创建缓存统一入口。
// type=redis 连不上时降级为内存缓存，网关照常工作，只是没有跨实例共享。
func NewCache(ctx context.Context, cfg config.CacheConfig, lg *log.Logger) (Store, error) {
	if lg == nil {
		lg = log.Discard()
	}
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		store, err := NewRedisStore(ctx, cfg)
		if err != nil {
			lg.Warn("redis cache unavailable, falling back to memory",
				"addr", cfg.Addr,
				"err", err,
			)
			return NewMemoryStore(), nil
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
