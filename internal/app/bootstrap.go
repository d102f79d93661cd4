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

// Package app 网关的统一初始化与文档门面：cmd 层只拿 Bootstrap，不碰具体存储。
package app

import (
	"context"
	"fmt"

	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/runtime/user"
	"scholar-agent/internal/storage/cache"
	"scholar-agent/internal/storage/metadata"
	"scholar-agent/internal/storage/object"
	"scholar-agent/pkg/config"
	"scholar-agent/pkg/log"
	"scholar-agent/pkg/secrets"
)

// Bootstrap 统一初始化：配置、日志与四类存储（会话、用户、文档元数据、文档对象）
type Bootstrap struct {
	Config        *config.Config
	Logger        *log.Logger
	SessionStore  session.Store
	UserStore     user.Store
	MetadataStore metadata.Store
	ObjectStore   object.Store
	Cache         cache.Store
	Secrets       secrets.Store
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	sessionStore, err := newSessionStore(cfg.Storage.Sessions)
	if err != nil {
		return nil, fmt.Errorf("初始化会话存储failed: %w", err)
	}
	userStore, err := newUserStore(cfg.Storage.Sessions)
	if err != nil {
		return nil, fmt.Errorf("初始化用户存储failed: %w", err)
	}
	metaStore, err := metadata.NewStore(cfg.Storage.Metadata)
	if err != nil {
		return nil, fmt.Errorf("初始化元数据存储failed: %w", err)
	}
	objStore, err := object.NewStore(cfg.Storage.Documents)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储failed: %w", err)
	}
	cacheStore, err := cache.NewCache(context.Background(), cfg.Storage.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}
	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Backend,
		Config: map[string]string{
			"address":     cfg.Secrets.Vault.Addr,
			"token":       cfg.Secrets.Vault.Token,
			"path_prefix": cfg.Secrets.Vault.Mount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化密钥存储failed: %w", err)
	}

	return &Bootstrap{
		Config:        cfg,
		Logger:        logger,
		SessionStore:  sessionStore,
		UserStore:     userStore,
		MetadataStore: metaStore,
		ObjectStore:   objStore,
		Cache:         cacheStore,
		Secrets:       secretStore,
	}, nil
}

// newSessionStore 会话存储：memory | sqlite | postgres
func newSessionStore(cfg config.SessionStoreConfig) (session.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return session.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "data/scholar_agent.db"
		}
		return session.NewSQLiteStore(path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("会话存储 type=postgres 需要配置 dsn")
		}
		pg, err := session.NewPGStore(context.Background(), cfg.DSN, cfg.PoolSize)
		if err != nil {
			return nil, err
		}
		if err := pg.InitSchema(context.Background()); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("不支持的会话存储类型: %s", cfg.Type)
	}
}

// newUserStore 用户存储与会话同配置：sqlite 时各用各的文件，postgres 时用户仍走 sqlite
// （生产后端的用户数据只在单机 sqlite 里）
func newUserStore(cfg config.SessionStoreConfig) (user.Store, error) {
	switch cfg.Type {
	case "", "memory", "postgres":
		if cfg.Type == "postgres" {
			return user.NewSQLiteStore("data/scholar_users.db")
		}
		return user.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "data/scholar_agent.db"
		}
		// 用户库独立成文件，纯 Go 驱动下两个库互不牵连
		return user.NewSQLiteStore(userDBPath(path))
	default:
		return nil, fmt.Errorf("不支持的用户存储类型: %s", cfg.Type)
	}
}

// userDBPath 从会话库路径派生用户库路径：xxx.db → xxx_users.db
func userDBPath(sessionPath string) string {
	const suffix = ".db"
	if len(sessionPath) > len(suffix) && sessionPath[len(sessionPath)-len(suffix):] == suffix {
		return sessionPath[:len(sessionPath)-len(suffix)] + "_users" + suffix
	}
	return sessionPath + "_users"
}

// Close 释放全部存储连接
func (b *Bootstrap) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{
		b.SessionStore, b.UserStore, b.MetadataStore, b.ObjectStore, b.Cache,
	} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
