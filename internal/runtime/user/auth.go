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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

// passwordSalt 与既有用户库的口令散列保持兼容，换盐等于让所有老用户失效
const passwordSalt = "scholar_agent_auth_v1"

// HashPassword 口令散列。盐、用户名、口令拼接后取 SHA-256
func HashPassword(username, password string) string {
	raw := fmt.Sprintf("%s:%s:%s", passwordSalt, username, password)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AuthService 注册与登录。user_id 即用户名。
type AuthService struct {
	store Store
	log   *log.Logger
}

// NewAuthService 创建认证服务。lg 可为 nil。
func NewAuthService(store Store, lg *log.Logger) *AuthService {
	if lg == nil {
		lg = log.Discard()
	}
	return &AuthService{store: store, log: lg}
}

// Register 注册新用户并建立默认档案，返回 user_id
func (s *AuthService) Register(ctx context.Context, username, password, confirm string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "用户名不能为空")
	}
	if password == "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "密码不能为空")
	}
	if password != confirm {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "两次输入的密码不一致")
	}

	err := s.store.CreateAuthUser(ctx, &AuthUser{
		Username:     username,
		PasswordHash: HashPassword(username, password),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return "", err
	}
	if _, err := s.store.GetProfile(ctx, username); err != nil {
		return "", err
	}
	s.log.Info("user registered", "user_id", username)
	return username, nil
}

// Login 校验口令，返回 user_id。用户不存在与口令错误不作区分。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", pkgerrors.Wrap(pkgerrors.ErrUnauthorized, "用户名或密码错误")
	}
	u, err := s.store.GetAuthUser(ctx, username)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.ErrUnauthorized, "用户名或密码错误")
	}
	if err != nil {
		return "", err
	}
	if u.PasswordHash != HashPassword(username, password) {
		return "", pkgerrors.Wrap(pkgerrors.ErrUnauthorized, "用户名或密码错误")
	}
	if _, err := s.store.GetProfile(ctx, username); err != nil {
		return "", err
	}
	return username, nil
}
