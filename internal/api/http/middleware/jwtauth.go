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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"scholar-agent/internal/runtime/user"
)

// IdentityKey JWT 载荷与请求上下文里的用户 id 键
const IdentityKey = "user_id"

// devUserID 认证关闭（本地开发）时的兜底用户
const devUserID = "local"

// NewJWTAuth 构建 JWT 认证中间件。登录校验委托给 AuthService，
// 成功后把用户 id 写进 token 载荷，后续请求经 MiddlewareFunc 还原到上下文。
func NewJWTAuth(auth *user.AuthService, key []byte, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "scholar-agent",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: IdentityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if id, ok := data.(string); ok {
				return jwt.MapClaims{IdentityKey: id}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return claims[IdentityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.BindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			userID, err := auth.Login(ctx, req.Username, req.Password)
			if err != nil {
				return nil, jwt.ErrFailedAuthentication
			}
			return userID, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{
				"error":   "unauthorized",
				"message": message,
			})
		},
		LoginResponse: func(ctx context.Context, c *app.RequestContext, code int, token string, expire time.Time) {
			c.JSON(consts.StatusOK, map[string]interface{}{
				"token":  token,
				"expire": expire.Format(time.RFC3339),
			})
		},
	})
}

// UserID 取当前请求的用户 id；认证未启用时返回开发兜底用户
func UserID(c *app.RequestContext) string {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return devUserID
}
