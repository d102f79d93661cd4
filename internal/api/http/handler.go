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

// Package http scholard 开发网关的 REST + SSE 接口层。
// 认证、会话、文档与档案走 JSON；chat/stream 走 SSE（见 chat.go）。
package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertzjwt "github.com/hertz-contrib/jwt"

	appsvc "scholar-agent/internal/app"
	"scholar-agent/internal/api/http/middleware"
	"scholar-agent/internal/emitter"
	"scholar-agent/internal/quota"
	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/runtime/user"
	"scholar-agent/internal/storage/cache"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
	"scholar-agent/pkg/metrics"
)

// defaultMaxUploadBytes 上传大小上限兜底（100MB）
const defaultMaxUploadBytes = 100 << 20

// defaultCacheTTL 会话列表/档案的读缓存时长
const defaultCacheTTL = time.Minute

// Handler REST 接口处理器
type Handler struct {
	sessions *session.Manager
	docs     *appsvc.DocumentService
	users    user.Store
	auth     *user.AuthService
	emit     *emitter.Emitter
	keeper   *quota.Keeper
	stops    *StopRegistry
	jwt      *hertzjwt.HertzJWTMiddleware
	cache    cache.Store
	log      *log.Logger

	maxUploadBytes int64
	cacheTTL       time.Duration
}

// NewHandler 创建处理器
func NewHandler(sessions *session.Manager, docs *appsvc.DocumentService, users user.Store, auth *user.AuthService, em *emitter.Emitter, keeper *quota.Keeper, lg *log.Logger) *Handler {
	if lg == nil {
		lg = log.Discard()
	}
	return &Handler{
		sessions:       sessions,
		docs:           docs,
		users:          users,
		auth:           auth,
		emit:           em,
		keeper:         keeper,
		stops:          NewStopRegistry(),
		log:            lg,
		maxUploadBytes: defaultMaxUploadBytes,
		cacheTTL:       defaultCacheTTL,
	}
}

// SetJWT 注入 JWT 中间件，register 成功后复用其 LoginHandler 签发 token
func (h *Handler) SetJWT(mw *hertzjwt.HertzJWTMiddleware) { h.jwt = mw }

// SetCache 注入读缓存，会话列表与档案走读穿透；ttl <= 0 用默认值
func (h *Handler) SetCache(store cache.Store, ttl time.Duration) {
	h.cache = store
	if ttl > 0 {
		h.cacheTTL = ttl
	}
}

// 缓存键。写路径（建删会话、改档案、结算）负责失效。
func sessionsCacheKey(userID string) string { return "sessions:" + userID }
func profileCacheKey(userID string) string  { return "profile:" + userID }

// dropCache 失效一组缓存键。缓存失效失败只记日志，不影响主流程。
func (h *Handler) dropCache(c context.Context, keys ...string) {
	if h.cache == nil {
		return
	}
	for _, key := range keys {
		if err := h.cache.Delete(c, key); err != nil {
			h.log.Warn("drop cache", "key", key, "err", err)
		}
	}
}

// SetMaxUploadBytes 调整上传大小上限，<=0 不变
func (h *Handler) SetMaxUploadBytes(n int64) {
	if n > 0 {
		h.maxUploadBytes = n
	}
}

// httpError 把业务错误映射成响应：{error: 机读码, message: 人读信息}
func httpError(ctx *app.RequestContext, err error) {
	if reason := pkgerrors.ReasonOf(err); reason != "" {
		ctx.JSON(consts.StatusPaymentRequired, map[string]string{
			"error":   reason,
			"message": err.Error(),
		})
		return
	}
	status := consts.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		status, code = consts.StatusNotFound, "not_found"
	case errors.Is(err, pkgerrors.ErrInvalidArg):
		status, code = consts.StatusBadRequest, "invalid_argument"
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		status, code = consts.StatusUnauthorized, "unauthorized"
	case errors.Is(err, pkgerrors.ErrTurnActive):
		status, code = consts.StatusConflict, "turn_active"
	}
	ctx.JSON(status, map[string]string{"error": code, "message": err.Error()})
}

// HealthCheck GET /api/v1/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok", "service": "scholard"})
}

// Metrics GET /metrics（Prometheus 文本格式）
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal", "message": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// Register POST /api/v1/auth/register
// 注册成功后直接走 JWT LoginHandler 签发 token，免去前端二次登录。
func (h *Handler) Register(c context.Context, ctx *app.RequestContext) {
	var req struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "invalid request body"})
		return
	}
	userID, err := h.auth.Register(c, req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		httpError(ctx, err)
		return
	}
	hlog.CtxInfof(c, "user registered: %s", userID)
	if h.jwt != nil {
		h.jwt.LoginHandler(c, ctx)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"user_id": userID, "token": ""})
}

// ListSessions GET /api/v1/sessions
func (h *Handler) ListSessions(c context.Context, ctx *app.RequestContext) {
	userID := middleware.UserID(ctx)
	if h.cache != nil {
		var cached []*session.Session
		if err := h.cache.Get(c, sessionsCacheKey(userID), &cached); err == nil {
			ctx.JSON(consts.StatusOK, map[string]interface{}{"sessions": cached})
			return
		}
	}
	list, err := h.sessions.List(c, userID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(c, sessionsCacheKey(userID), list, h.cacheTTL); err != nil {
			h.log.Warn("cache sessions", "user_id", userID, "err", err)
		}
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"sessions": list})
}

// CreateSession POST /api/v1/sessions
func (h *Handler) CreateSession(c context.Context, ctx *app.RequestContext) {
	userID := middleware.UserID(ctx)
	sess, err := h.sessions.Create(c, userID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	h.dropCache(c, sessionsCacheKey(userID))
	ctx.JSON(consts.StatusOK, sess)
}

// ownedSession 取会话并校验归属；归属不符按不存在处理，避免泄露他人会话 id 有效性
func (h *Handler) ownedSession(c context.Context, ctx *app.RequestContext) (*session.Session, bool) {
	sess, err := h.sessions.Get(c, ctx.Param("id"))
	if err != nil {
		httpError(ctx, err)
		return nil, false
	}
	if sess.UserID != "" && sess.UserID != middleware.UserID(ctx) {
		httpError(ctx, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "session %s", sess.ID))
		return nil, false
	}
	return sess, true
}

// GetSession GET /api/v1/sessions/:id
func (h *Handler) GetSession(c context.Context, ctx *app.RequestContext) {
	sess, ok := h.ownedSession(c, ctx)
	if !ok {
		return
	}
	ctx.JSON(consts.StatusOK, sess)
}

// DeleteSession DELETE /api/v1/sessions/:id
func (h *Handler) DeleteSession(c context.Context, ctx *app.RequestContext) {
	sess, ok := h.ownedSession(c, ctx)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c, sess.ID); err != nil {
		httpError(ctx, err)
		return
	}
	h.dropCache(c, sessionsCacheKey(middleware.UserID(ctx)))
	ctx.JSON(consts.StatusOK, map[string]string{"status": "deleted"})
}

// ListMessages GET /api/v1/sessions/:id/messages
func (h *Handler) ListMessages(c context.Context, ctx *app.RequestContext) {
	sess, ok := h.ownedSession(c, ctx)
	if !ok {
		return
	}
	msgs, err := h.sessions.Messages(c, sess.ID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"messages": msgs})
}

// UploadDocument POST /api/v1/documents/upload（multipart：file + 可选 folder_id）
func (h *Handler) UploadDocument(c context.Context, ctx *app.RequestContext) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "file field is required"})
		return
	}
	if fh.Size > h.maxUploadBytes {
		ctx.JSON(consts.StatusRequestEntityTooLarge, map[string]string{
			"error": "file_too_large", "message": "file exceeds upload size limit",
		})
		return
	}
	f, err := fh.Open()
	if err != nil {
		httpError(ctx, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		httpError(ctx, err)
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		ctx.JSON(consts.StatusRequestEntityTooLarge, map[string]string{
			"error": "file_too_large", "message": "file exceeds upload size limit",
		})
		return
	}

	folderID := string(ctx.FormValue("folder_id"))
	doc, err := h.docs.Upload(c, middleware.UserID(ctx), folderID, fh.Filename, data)
	if err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, doc)
}

// ListDocuments GET /api/v1/documents?folder_id=&search=
func (h *Handler) ListDocuments(c context.Context, ctx *app.RequestContext) {
	docs, err := h.docs.List(c, middleware.UserID(ctx), ctx.Query("folder_id"), ctx.Query("search"))
	if err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"documents": docs})
}

// GetDocument GET /api/v1/documents/:id
func (h *Handler) GetDocument(c context.Context, ctx *app.RequestContext) {
	doc, err := h.docs.Get(c, ctx.Param("id"))
	if err != nil {
		httpError(ctx, err)
		return
	}
	if doc.UserID != middleware.UserID(ctx) {
		httpError(ctx, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "document %s", doc.ID))
		return
	}
	ctx.JSON(consts.StatusOK, doc)
}

// DeleteDocument DELETE /api/v1/documents/:id
func (h *Handler) DeleteDocument(c context.Context, ctx *app.RequestContext) {
	doc, err := h.docs.Get(c, ctx.Param("id"))
	if err != nil {
		httpError(ctx, err)
		return
	}
	if doc.UserID != middleware.UserID(ctx) {
		httpError(ctx, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "document %s", doc.ID))
		return
	}
	if err := h.docs.Delete(c, doc.ID); err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"status": "deleted"})
}

// ListFolders GET /api/v1/folders
func (h *Handler) ListFolders(c context.Context, ctx *app.RequestContext) {
	folders, err := h.docs.ListFolders(c, middleware.UserID(ctx))
	if err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"folders": folders})
}

// CreateFolder POST /api/v1/folders
func (h *Handler) CreateFolder(c context.Context, ctx *app.RequestContext) {
	var req struct {
		Name     string `json:"name"`
		ParentID string `json:"parent_id"`
	}
	if err := ctx.BindJSON(&req); err != nil || req.Name == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "name is required"})
		return
	}
	folder, err := h.docs.CreateFolder(c, middleware.UserID(ctx), req.Name, req.ParentID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, folder)
}

// Profile GET /api/v1/users/profile
func (h *Handler) Profile(c context.Context, ctx *app.RequestContext) {
	userID := middleware.UserID(ctx)
	if h.cache != nil {
		var cached user.Profile
		if err := h.cache.Get(c, profileCacheKey(userID), &cached); err == nil {
			ctx.JSON(consts.StatusOK, &cached)
			return
		}
	}
	p, err := h.users.GetProfile(c, userID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(c, profileCacheKey(userID), p, h.cacheTTL); err != nil {
			h.log.Warn("cache profile", "user_id", userID, "err", err)
		}
	}
	ctx.JSON(consts.StatusOK, p)
}

// UpdateProfile PUT /api/v1/users/profile
func (h *Handler) UpdateProfile(c context.Context, ctx *app.RequestContext) {
	var upd user.ProfileUpdate
	if err := ctx.BindJSON(&upd); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "invalid request body"})
		return
	}
	if upd.ModelMode != nil && *upd.ModelMode != user.ModeFree && *upd.ModelMode != user.ModePaid {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "model_mode must be free or paid"})
		return
	}
	userID := middleware.UserID(ctx)
	p, err := h.users.UpdateProfile(c, userID, upd)
	if err != nil {
		httpError(ctx, err)
		return
	}
	h.dropCache(c, profileCacheKey(userID))
	ctx.JSON(consts.StatusOK, p)
}

// Recharge POST /api/v1/users/recharge
func (h *Handler) Recharge(c context.Context, ctx *app.RequestContext) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := ctx.BindJSON(&req); err != nil || req.Amount <= 0 {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "amount must be positive"})
		return
	}
	userID := middleware.UserID(ctx)
	p, err := h.users.AddBalance(c, userID, req.Amount)
	if err != nil {
		httpError(ctx, err)
		return
	}
	h.dropCache(c, profileCacheKey(userID))
	ctx.JSON(consts.StatusOK, p)
}
