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
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"scholar-agent/internal/api/http/middleware"
	"scholar-agent/internal/emitter"
	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/stream"
	"scholar-agent/internal/task"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/metrics"
)

// StopRegistry 按会话登记进行中的 agent 运行，供 /chat/stop 取消。
// 一个会话同时最多一轮，后登记的覆盖前者（前者此时必已终态）。
type StopRegistry struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

// NewStopRegistry 创建登记表
func NewStopRegistry() *StopRegistry {
	return &StopRegistry{m: make(map[string]context.CancelFunc)}
}

// Register 登记一轮运行的取消函数
func (r *StopRegistry) Register(sessionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[sessionID] = cancel
}

// Remove 运行终态后清除登记
func (r *StopRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, sessionID)
}

// Stop 取消该会话的进行中运行，返回是否命中
func (r *StopRegistry) Stop(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.m[sessionID]
	delete(r.m, sessionID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// chatRequest chat/stream 请求体，与客户端传输层的 StartRequest 对应
type chatRequest struct {
	SessionID string   `json:"session_id"`
	Message   string   `json:"message"`
	Mode      string   `json:"mode"`
	DocIDs    []string `json:"doc_ids"`
}

// ChatStream POST /api/v1/chat/stream
// 准入失败在首帧前以 JSON 错误返回；通过后切到 SSE，一帧帧写事件。
// 首轮会话 id 通过 X-Session-Id 响应头下发。
func (h *Handler) ChatStream(c context.Context, ctx *app.RequestContext) {
	userID := middleware.UserID(ctx)
	var req chatRequest
	if err := ctx.BindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "message is required"})
		return
	}
	if req.Mode == "" {
		req.Mode = emitter.ModeAgent
	}

	if err := h.keeper.Admit(c, userID); err != nil {
		if reason := pkgerrors.ReasonOf(err); reason != "" {
			metrics.QuotaRejectedTotal.WithLabelValues(reason).Inc()
		}
		httpError(ctx, err)
		return
	}

	sess, err := h.sessions.GetOrCreate(c, req.SessionID, userID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	if sess.UserID != "" && sess.UserID != userID {
		httpError(ctx, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "session %s", sess.ID))
		return
	}
	history, err := h.sessions.Messages(c, sess.ID)
	if err != nil {
		httpError(ctx, err)
		return
	}
	if _, err := h.sessions.RecordUserMessage(c, sess.ID, req.Message); err != nil {
		httpError(ctx, err)
		return
	}

	// 请求处理结束后 hertz 仍在消费流，运行挂在独立 ctx 上，
	// 由 stop 登记与下游断开（pipe 写错误）负责终止。
	runCtx, cancel := context.WithCancel(context.Background())
	h.stops.Register(sess.ID, cancel)

	pr, pw := io.Pipe()
	ctx.Response.Header.Set("Content-Type", "text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set(stream.HeaderSessionID, sess.ID)
	ctx.SetBodyStream(pr, -1)

	go h.runTurn(runCtx, cancel, pw, sess, userID, req, history)
}

// runTurn 在独立 goroutine 中生产事件流并在终态后落库
func (h *Handler) runTurn(runCtx context.Context, cancel context.CancelFunc, pw *io.PipeWriter, sess *session.Session, userID string, req chatRequest, history []*session.Message) {
	start := time.Now()
	metrics.StreamActive.Inc()
	defer func() {
		metrics.StreamActive.Dec()
		h.stops.Remove(sess.ID)
		cancel()
		_ = pw.Close()
	}()

	st := task.NewState()
	var answer strings.Builder
	sse := emitter.NewSSEWriter(pw)
	settled := false

	emitFn := func(event string, payload map[string]interface{}) error {
		// done 前插入结算帧，告诉客户端本轮花了多少、还剩多少
		if event == task.EventDone && !settled {
			settled = true
			tokens := (len(req.Message) + answer.Len()) / 4
			if usage, err := h.keeper.Settle(runCtx, userID, sess.ID, req.Mode, tokens); err != nil {
				h.log.Warn("结算失败", "session_id", sess.ID, "error", err)
			} else if usage.Cost > 0 || usage.ModelMode != "" {
				costPayload := map[string]interface{}{
					"cost":       usage.Cost,
					"balance":    usage.Balance,
					"model_mode": usage.ModelMode,
				}
				raw, _ := json.Marshal(costPayload)
				_ = st.Apply(task.EventCost, raw)
				if err := sse.Emit(task.EventCost, costPayload); err != nil {
					return err
				}
			}
		}
		metrics.FrameTotal.WithLabelValues(event).Inc()
		if event == task.EventStream {
			if content, ok := payload["content"].(string); ok {
				answer.WriteString(content)
				metrics.AnswerBytes.Add(float64(len(content)))
			}
		} else if raw, err := json.Marshal(payload); err == nil {
			if err := st.Apply(event, raw); err != nil {
				h.log.Debug("状态折叠失败", "event", event, "error", err)
			}
		}
		return sse.Emit(event, payload)
	}

	runErr := h.runEmitter(runCtx, req, history, emitFn)

	cancelled := runErr != nil && runCtx.Err() != nil
	outcome := "completed"
	switch {
	case cancelled:
		outcome = "cancelled"
	case runErr != nil:
		outcome = "errored"
	}
	metrics.ChatRequestDuration.WithLabelValues(req.Mode, outcome).Observe(time.Since(start).Seconds())

	if runErr != nil && !cancelled {
		hlog.Errorf("agent 运行失败 session=%s: %v", sess.ID, runErr)
		_ = sse.Emit(task.EventError, map[string]interface{}{"message": runErr.Error()})
	}

	// 取消与完成都落库；被停掉的回合带停止标记（可能只有标记没有正文）
	finalAnswer := answer.String()
	if cancelled {
		finalAnswer += stream.CancelledSuffix
	}
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()
	if _, err := h.sessions.FinalizeTurn(persistCtx, sess.ID, finalAnswer, st, cancelled); err != nil {
		h.log.Warn("回合落库失败", "session_id", sess.ID, "error", err)
	}
	// 回合改了会话标题/时间与余额，两类缓存都要失效
	h.dropCache(persistCtx, sessionsCacheKey(userID), profileCacheKey(userID))
}

// runEmitter 组装 normal 模式的历史后执行
func (h *Handler) runEmitter(runCtx context.Context, req chatRequest, history []*session.Message, emitFn emitter.EmitFunc) error {
	in := emitter.RunInput{Message: req.Message, Mode: req.Mode}
	if req.Mode == emitter.ModeNormal {
		in.History = historyMessages(history)
	}
	_, err := h.emit.Run(runCtx, in, emitFn)
	return err
}

// historyMessages 把会话历史转成模型消息（仅 user/assistant 文本）
func historyMessages(msgs []*session.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case session.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case session.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// ChatStop POST /api/v1/chat/stop
func (h *Handler) ChatStop(c context.Context, ctx *app.RequestContext) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := ctx.BindJSON(&req); err != nil || req.SessionID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid_argument", "message": "session_id is required"})
		return
	}
	stopped := h.stops.Stop(req.SessionID)
	ctx.JSON(consts.StatusOK, map[string]interface{}{"stopped": stopped})
}
