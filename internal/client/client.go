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

// Package client scholard 网关的 REST 客户端：认证、会话、文档、档案。
// 流式对话不在这里，那是 internal/stream 的传输层（REST 有超时，流没有）。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"

	pkgerrors "scholar-agent/pkg/errors"
)

// Client REST 客户端
type Client struct {
	http *resty.Client
}

// Options 客户端选项
type Options struct {
	BaseURL    string
	Timeout    time.Duration // <=0 默认 30s
	RetryCount int
	Token      string
}

// New 创建客户端
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetHeader("Content-Type", "application/json")
	if opts.Token != "" {
		c.SetAuthToken(opts.Token)
	}
	return &Client{http: c}
}

// SetToken 登录后设置 JWT
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// BaseURL 当前网关地址
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// apiError 把非 2xx 响应折成结构化错误，配额/余额类可被 errors.Is 识别
func apiError(resp *resty.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &payload)
	if sentinel := pkgerrors.FromReason(payload.Error); sentinel != nil {
		return pkgerrors.Wrapf(sentinel, "api %d", resp.StatusCode())
	}
	if resp.StatusCode() == 404 {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "api %d: %s", resp.StatusCode(), payload.Message)
	}
	if resp.StatusCode() == 401 {
		return pkgerrors.Wrapf(pkgerrors.ErrUnauthorized, "api %d: %s", resp.StatusCode(), payload.Message)
	}
	msg := payload.Message
	if msg == "" {
		msg = resp.String()
	}
	return fmt.Errorf("api %d (%s): %s", resp.StatusCode(), payload.Error, msg)
}

// get 发 GET 并解码到 out
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "GET %s", path)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// post 发 POST 并解码到 out，body/out 可为 nil
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "POST %s", path)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// put 发 PUT 并解码到 out
func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(out).Put(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "PUT %s", path)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// del 发 DELETE
func (c *Client) del(ctx context.Context, path string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "DELETE %s", path)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// upload 发 multipart 上传
func (c *Client) upload(ctx context.Context, path, field, filename string, data io.Reader, form map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx).
		SetFileReader(field, filename, data).
		SetResult(out)
	if len(form) > 0 {
		req.SetFormData(form)
	}
	resp, err := req.Post(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "POST %s", path)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}
