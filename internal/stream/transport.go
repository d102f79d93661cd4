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

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"

	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

// HeaderSessionID 首轮对话由服务端通过该响应头下发会话 id，后续轮复用
const HeaderSessionID = "X-Session-Id"

const chatStreamPath = "/api/v1/chat/stream"

// 错误响应体不会很大，防御性截断
const maxErrorBody = 64 * 1024

// StartRequest 发起一轮对话的请求体
type StartRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Message   string   `json:"message"`
	Mode      string   `json:"mode,omitempty"`
	DocIDs    []string `json:"doc_ids,omitempty"`
}

// Conn 已打开的事件流连接。Body 由调用方负责读尽并关闭。
type Conn struct {
	SessionID string
	Body      io.ReadCloser
}

// APIError 流开始前服务端拒绝时的结构化错误。
// Reason 是机读码，配额/余额类会解包出对应哨兵错误，
// 调用方可用 errors.Is 区分展示。
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("api error %d (%s)", e.Status, e.Reason)
}

func (e *APIError) Unwrap() error {
	return pkgerrors.FromReason(e.Reason)
}

// Transport 打开对话事件流。持有独立的 resty 客户端：
// 流式响应不能整体解析，也不能设请求级超时（流可以合法地长时间不结束），
// 生命周期完全交给 ctx。
type Transport struct {
	http *resty.Client
	log  *log.Logger
}

// NewTransport 创建流式传输层。baseURL 与 REST 客户端一致。
func NewTransport(baseURL string, lg *log.Logger) *Transport {
	if lg == nil {
		lg = log.Discard()
	}
	return &Transport{
		http: resty.New().
			SetBaseURL(baseURL).
			SetDoNotParseResponse(true).
			SetHeader("Content-Type", "application/json"),
		log: lg,
	}
}

// SetToken 设置后续请求携带的 JWT
func (t *Transport) SetToken(token string) {
	t.http.SetAuthToken(token)
}

// Open 发起请求并返回事件流。取消 ctx 会让 Body 的读取立即出错返回。
// 非 2xx 响应在任何帧回调之前短路成 *APIError。
func (t *Transport) Open(ctx context.Context, req StartRequest) (*Conn, error) {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(req).
		SetHeader("Accept", "text/event-stream").
		Post(chatStreamPath)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open chat stream")
	}
	body := resp.RawBody()
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		defer body.Close()
		apiErr := decodeAPIError(code, body)
		t.log.Warn("chat stream rejected", "status", code, "reason", apiErr.Reason)
		return nil, apiErr
	}
	sessionID := resp.Header().Get(HeaderSessionID)
	t.log.Debug("chat stream opened", "session_id", sessionID)
	return &Conn{SessionID: sessionID, Body: body}, nil
}

func decodeAPIError(status int, body io.Reader) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" && payload.Message == "" {
		return &APIError{Status: status, Message: string(raw)}
	}
	return &APIError{Status: status, Reason: payload.Error, Message: payload.Message}
}
