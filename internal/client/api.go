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

package client

import (
	"context"
	"io"

	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/runtime/user"
	"scholar-agent/internal/storage/metadata"
)

// Register 注册并返回 JWT
func (c *Client) Register(ctx context.Context, username, password, confirm string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/api/v1/auth/register", map[string]string{
		"username":         username,
		"password":         password,
		"confirm_password": confirm,
	}, &out)
	if err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// Login 登录并返回 JWT
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// ListSessions 按最近更新倒序列出会话
func (c *Client) ListSessions(ctx context.Context) ([]*session.Session, error) {
	var out struct {
		Sessions []*session.Session `json:"sessions"`
	}
	if err := c.get(ctx, "/api/v1/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// CreateSession 新建会话
func (c *Client) CreateSession(ctx context.Context) (*session.Session, error) {
	var out session.Session
	if err := c.post(ctx, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession 按 id 取会话
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var out session.Session
	if err := c.get(ctx, "/api/v1/sessions/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession 删除会话及其消息
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.del(ctx, "/api/v1/sessions/"+id)
}

// ListMessages 按时间正序取会话消息（assistant 消息可带任务快照元数据）
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	var out struct {
		Messages []*session.Message `json:"messages"`
	}
	if err := c.get(ctx, "/api/v1/sessions/"+sessionID+"/messages", &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// StopChat 通知服务端停止该会话正在进行的 agent 运行。
// 本地取消走 stream.Turn.Cancel，这只是捎带告诉服务端别再算了。
func (c *Client) StopChat(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/api/v1/chat/stop", map[string]string{"session_id": sessionID}, nil)
}

// UploadDocument 上传文档，folderID 可为空
func (c *Client) UploadDocument(ctx context.Context, filename string, data io.Reader, folderID string) (*metadata.Document, error) {
	form := map[string]string{}
	if folderID != "" {
		form["folder_id"] = folderID
	}
	var out metadata.Document
	if err := c.upload(ctx, "/api/v1/documents/upload", "file", filename, data, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments 列出文档，folderID/search 可为空
func (c *Client) ListDocuments(ctx context.Context, folderID, search string) ([]*metadata.Document, error) {
	path := "/api/v1/documents"
	sep := "?"
	if folderID != "" {
		path += sep + "folder_id=" + folderID
		sep = "&"
	}
	if search != "" {
		path += sep + "search=" + search
	}
	var out struct {
		Documents []*metadata.Document `json:"documents"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// GetDocument 按 id 取文档
func (c *Client) GetDocument(ctx context.Context, id string) (*metadata.Document, error) {
	var out metadata.Document
	if err := c.get(ctx, "/api/v1/documents/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument 删除文档
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.del(ctx, "/api/v1/documents/"+id)
}

// ListFolders 列出文件夹
func (c *Client) ListFolders(ctx context.Context) ([]*metadata.Folder, error) {
	var out struct {
		Folders []*metadata.Folder `json:"folders"`
	}
	if err := c.get(ctx, "/api/v1/folders", &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

// CreateFolder 新建文件夹
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*metadata.Folder, error) {
	var out metadata.Folder
	err := c.post(ctx, "/api/v1/folders", map[string]string{
		"name":      name,
		"parent_id": parentID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile 取当前用户档案
func (c *Client) Profile(ctx context.Context) (*user.Profile, error) {
	var out user.Profile
	if err := c.get(ctx, "/api/v1/users/profile", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile 部分更新档案
func (c *Client) UpdateProfile(ctx context.Context, upd user.ProfileUpdate) (*user.Profile, error) {
	var out user.Profile
	if err := c.put(ctx, "/api/v1/users/profile", upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recharge 充值，返回更新后的档案
func (c *Client) Recharge(ctx context.Context, amount float64) (*user.Profile, error) {
	var out user.Profile
	err := c.post(ctx, "/api/v1/users/recharge", map[string]float64{"amount": amount}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
