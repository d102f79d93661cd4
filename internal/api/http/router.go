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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertzjwt "github.com/hertz-contrib/jwt"

	"scholar-agent/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwt        *hertzjwt.HertzJWTMiddleware
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用 JWT 认证；未设置时所有接口按开发兜底用户放行
func (r *Router) SetJWT(mw *hertzjwt.HertzJWTMiddleware) {
	r.jwt = mw
	r.handler.SetJWT(mw)
}

// Build 构建 Hertz Server 并装好全部路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	serverOpts := append([]config.Option{server.WithHostPorts(addr), server.WithStreamBody(true)}, opts...)
	h := server.Default(serverOpts...)
	r.Register(h)
	return h
}

// Register 把路由挂到既有 Server 上（测试直接用它拿 Engine）
func (r *Router) Register(h *server.Hertz) {
	h.Use(r.middleware.CORS())
	h.Use(r.middleware.AccessLog())

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api/v1")
	api.GET("/health", r.handler.HealthCheck)
	api.POST("/auth/register", r.handler.Register)
	if r.jwt != nil {
		api.POST("/auth/login", r.jwt.LoginHandler)
		api.POST("/auth/refresh", r.jwt.RefreshHandler)
		// Use 只影响其后注册的路由，health 与 auth 保持免认证
		api.Use(r.jwt.MiddlewareFunc())
	}

	api.GET("/sessions", r.handler.ListSessions)
	api.POST("/sessions", r.handler.CreateSession)
	api.GET("/sessions/:id", r.handler.GetSession)
	api.DELETE("/sessions/:id", r.handler.DeleteSession)
	api.GET("/sessions/:id/messages", r.handler.ListMessages)

	api.POST("/chat/stream", r.handler.ChatStream)
	api.POST("/chat/stop", r.handler.ChatStop)

	api.POST("/documents/upload", r.handler.UploadDocument)
	api.GET("/documents", r.handler.ListDocuments)
	api.GET("/documents/:id", r.handler.GetDocument)
	api.DELETE("/documents/:id", r.handler.DeleteDocument)

	api.GET("/folders", r.handler.ListFolders)
	api.POST("/folders", r.handler.CreateFolder)

	api.GET("/users/profile", r.handler.Profile)
	api.PUT("/users/profile", r.handler.UpdateProfile)
	api.POST("/users/recharge", r.handler.Recharge)
}
