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

// Package api scholard 网关的装配层：把 Bootstrap 里的存储、配额、
// 发射器与 HTTP 路由拼成一个可运行的服务。
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	httpapi "scholar-agent/internal/api/http"
	"scholar-agent/internal/api/http/middleware"
	"scholar-agent/internal/app"
	"scholar-agent/internal/emitter"
	"scholar-agent/internal/quota"
	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/runtime/user"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App scholard 网关应用
type App struct {
	bootstrap    *app.Bootstrap
	router       *httpapi.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建网关应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	lg := bootstrap.Logger

	sessions := session.NewManager(bootstrap.SessionStore, lg)
	docs := app.NewDocumentService(bootstrap.MetadataStore, bootstrap.ObjectStore, lg)
	authSvc := user.NewAuthService(bootstrap.UserStore, lg)
	keeper := quota.NewKeeper(bootstrap.UserStore, cfg.Quota, lg)

	relay := emitter.NewRelay(cfg.Model, bootstrap.Secrets, lg)
	em := emitter.NewEmitter(cfg.Server.ScenarioDir, relay, lg)

	handler := httpapi.NewHandler(sessions, docs, bootstrap.UserStore, authSvc, em, keeper, lg)
	if mb := cfg.Storage.Documents.MaxUploadMB; mb > 0 {
		handler.SetMaxUploadBytes(int64(mb) << 20)
	}
	if bootstrap.Cache != nil {
		handler.SetCache(bootstrap.Cache, parseDuration(cfg.Storage.Cache.TTL, 0))
	}
	router := httpapi.NewRouter(handler, middleware.NewMiddleware())

	if cfg.Server.Middleware.Auth && cfg.Server.Middleware.JWTKey != "" {
		timeout := parseDuration(cfg.Server.Middleware.JWTTimeout, 24*time.Hour)
		maxRefresh := parseDuration(cfg.Server.Middleware.JWTMaxRefresh, 24*time.Hour)
		jwtAuth, err := middleware.NewJWTAuth(authSvc, []byte(cfg.Server.Middleware.JWTKey), timeout, maxRefresh)
		if err != nil {
			lg.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			lg.Info("JWT 认证已启用")
		}
	}

	return &App{
		bootstrap: bootstrap,
		router:    router,
	}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.bootstrap.Config
	a.bootstrap.Logger.Info("scholard 网关启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	if cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "scholard"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			p := provider.NewOpenTelemetryProvider(opts...)
			a.otelProvider = p
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.router.Build(addr)
		}
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	return a.bootstrap.Close()
}

// parseDuration 解析时长字符串，无效或空时返回 defaultVal
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
