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
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsvc "scholar-agent/internal/app"
	"scholar-agent/internal/api/http/middleware"
	"scholar-agent/internal/emitter"
	"scholar-agent/internal/quota"
	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/runtime/user"
	"scholar-agent/internal/storage/cache"
	"scholar-agent/internal/storage/metadata"
	"scholar-agent/internal/storage/object"
	"scholar-agent/pkg/config"
	"scholar-agent/pkg/log"
)

// testUserID 与 middleware.UserID 的开发兜底用户一致
const testUserID = "local"

type testGateway struct {
	handler  *Handler
	server   *server.Hertz
	users    user.Store
	sessions *session.Manager
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	lg := log.Discard()

	users := user.NewMemoryStore()
	sessions := session.NewManager(session.NewMemoryStore(), lg)
	docs := appsvc.NewDocumentService(metadata.NewMemoryStore(), object.NewMemoryStore(), lg)
	auth := user.NewAuthService(users, lg)
	em := emitter.NewEmitter("", nil, lg)
	em.SetFrameDelay(0)
	keeper := quota.NewKeeper(users, config.QuotaConfig{}, lg)

	h := NewHandler(sessions, docs, users, auth, em, keeper, lg)
	r := NewRouter(h, middleware.NewMiddleware())
	s := server.Default(server.WithHostPorts(":0"))
	r.Register(s)
	return &testGateway{handler: h, server: s, users: users, sessions: sessions}
}

func (g *testGateway) postJSON(t *testing.T, path string, body interface{}) *ut.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return ut.PerformRequest(g.server.Engine, "POST", path,
		&ut.Body{Body: bytes.NewReader(data), Len: len(data)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func (g *testGateway) get(t *testing.T, path string) *ut.ResponseRecorder {
	t.Helper()
	return ut.PerformRequest(g.server.Engine, "GET", path, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
}

func TestHealthCheck(t *testing.T) {
	g := newTestGateway(t)
	w := g.get(t, "/api/v1/health")
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t)
	w := g.get(t, "/metrics")
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "scholar_")
}

func TestSessionCreateListDelete(t *testing.T) {
	g := newTestGateway(t)

	w := g.postJSON(t, "/api/v1/sessions", map[string]string{})
	require.Equal(t, 200, w.Result().StatusCode())
	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Result().Body(), &sess))
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, testUserID, sess.UserID)

	w = g.get(t, "/api/v1/sessions")
	require.Equal(t, 200, w.Result().StatusCode())
	var list struct {
		Sessions []*session.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &list))
	require.Len(t, list.Sessions, 1)

	w = ut.PerformRequest(g.server.Engine, "DELETE", "/api/v1/sessions/"+sess.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	require.Equal(t, 200, w.Result().StatusCode())

	w = g.get(t, "/api/v1/sessions/" + sess.ID)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestSessionMessagesUnknownSession(t *testing.T) {
	g := newTestGateway(t)
	w := g.get(t, "/api/v1/sessions/nope/messages")
	assert.Equal(t, 404, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "not_found")
}

func TestDocumentUploadListDelete(t *testing.T) {
	g := newTestGateway(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "paper.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("plain text, not a pdf"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := ut.PerformRequest(g.server.Engine, "POST", "/api/v1/documents/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: mw.FormDataContentType()})
	require.Equal(t, 200, w.Result().StatusCode(), "body: %s", w.Result().Body())

	var doc metadata.Document
	require.NoError(t, json.Unmarshal(w.Result().Body(), &doc))
	assert.Equal(t, "paper.txt", doc.OriginalName)
	assert.Equal(t, testUserID, doc.UserID)

	w = g.get(t, "/api/v1/documents")
	var list struct {
		Documents []*metadata.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &list))
	require.Len(t, list.Documents, 1)

	w = ut.PerformRequest(g.server.Engine, "DELETE", "/api/v1/documents/"+doc.ID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	require.Equal(t, 200, w.Result().StatusCode())

	w = g.get(t, "/api/v1/documents/" + doc.ID)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestUploadMissingFile(t *testing.T) {
	g := newTestGateway(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("folder_id", "f1"))
	require.NoError(t, mw.Close())

	w := ut.PerformRequest(g.server.Engine, "POST", "/api/v1/documents/upload",
		&ut.Body{Body: bytes.NewReader(buf.Bytes()), Len: buf.Len()},
		ut.Header{Key: "Content-Type", Value: mw.FormDataContentType()})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestFolderCreateAndList(t *testing.T) {
	g := newTestGateway(t)

	w := g.postJSON(t, "/api/v1/folders", map[string]string{"name": "机器学习"})
	require.Equal(t, 200, w.Result().StatusCode())
	var folder metadata.Folder
	require.NoError(t, json.Unmarshal(w.Result().Body(), &folder))
	assert.Equal(t, "机器学习", folder.Name)

	w = g.get(t, "/api/v1/folders")
	var list struct {
		Folders []*metadata.Folder `json:"folders"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &list))
	assert.Len(t, list.Folders, 1)
}

func TestFolderNameRequired(t *testing.T) {
	g := newTestGateway(t)
	w := g.postJSON(t, "/api/v1/folders", map[string]string{})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestProfileUpdateAndRecharge(t *testing.T) {
	g := newTestGateway(t)

	w := g.get(t, "/api/v1/users/profile")
	require.Equal(t, 200, w.Result().StatusCode())
	var p user.Profile
	require.NoError(t, json.Unmarshal(w.Result().Body(), &p))
	assert.Equal(t, user.ModeFree, p.ModelMode)

	field := "自然语言处理"
	data, _ := json.Marshal(map[string]string{"research_field": field})
	w = ut.PerformRequest(g.server.Engine, "PUT", "/api/v1/users/profile",
		&ut.Body{Body: bytes.NewReader(data), Len: len(data)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	require.Equal(t, 200, w.Result().StatusCode())
	require.NoError(t, json.Unmarshal(w.Result().Body(), &p))
	assert.Equal(t, field, p.ResearchField)

	w = g.postJSON(t, "/api/v1/users/recharge", map[string]float64{"amount": 10})
	require.Equal(t, 200, w.Result().StatusCode())
	require.NoError(t, json.Unmarshal(w.Result().Body(), &p))
	assert.Equal(t, 10.0, p.Balance)

	w = g.postJSON(t, "/api/v1/users/recharge", map[string]float64{"amount": -1})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestProfileInvalidModelMode(t *testing.T) {
	g := newTestGateway(t)
	data, _ := json.Marshal(map[string]string{"model_mode": "vip"})
	w := ut.PerformRequest(g.server.Engine, "PUT", "/api/v1/users/profile",
		&ut.Body{Body: bytes.NewReader(data), Len: len(data)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestChatStreamRejectsEmptyMessage(t *testing.T) {
	g := newTestGateway(t)
	w := g.postJSON(t, "/api/v1/chat/stream", map[string]string{"message": "  "})
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestChatStreamQuotaRejectedBeforeFrames(t *testing.T) {
	g := newTestGateway(t)

	// 付费档余额为零：准入直接拒绝，一帧都不该发
	paid := user.ModePaid
	_, err := g.users.UpdateProfile(context.Background(), testUserID, user.ProfileUpdate{ModelMode: &paid})
	require.NoError(t, err)

	w := g.postJSON(t, "/api/v1/chat/stream", map[string]string{"message": "你好"})
	assert.Equal(t, 402, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "insufficient_balance")
}

func TestSessionListCacheInvalidatedByCreate(t *testing.T) {
	g := newTestGateway(t)
	g.handler.SetCache(cache.NewMemoryStore(), time.Minute)

	w := g.postJSON(t, "/api/v1/sessions", map[string]string{})
	require.Equal(t, 200, w.Result().StatusCode())

	// 第一次列表把结果写入缓存
	w = g.get(t, "/api/v1/sessions")
	require.Equal(t, 200, w.Result().StatusCode())
	var list struct {
		Sessions []*session.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &list))
	require.Len(t, list.Sessions, 1)

	// 新建会话必须使列表缓存失效，否则这里仍会读到旧的单条结果
	w = g.postJSON(t, "/api/v1/sessions", map[string]string{})
	require.Equal(t, 200, w.Result().StatusCode())

	w = g.get(t, "/api/v1/sessions")
	require.Equal(t, 200, w.Result().StatusCode())
	require.NoError(t, json.Unmarshal(w.Result().Body(), &list))
	assert.Len(t, list.Sessions, 2)
}

func TestProfileCacheInvalidatedByRecharge(t *testing.T) {
	g := newTestGateway(t)
	g.handler.SetCache(cache.NewMemoryStore(), time.Minute)

	w := g.get(t, "/api/v1/users/profile")
	require.Equal(t, 200, w.Result().StatusCode())
	var p user.Profile
	require.NoError(t, json.Unmarshal(w.Result().Body(), &p))
	require.Equal(t, 0.0, p.Balance)

	w = g.postJSON(t, "/api/v1/users/recharge", map[string]float64{"amount": 5})
	require.Equal(t, 200, w.Result().StatusCode())

	w = g.get(t, "/api/v1/users/profile")
	require.Equal(t, 200, w.Result().StatusCode())
	require.NoError(t, json.Unmarshal(w.Result().Body(), &p))
	assert.Equal(t, 5.0, p.Balance)
}

func TestChatStopNoActiveRun(t *testing.T) {
	g := newTestGateway(t)
	w := g.postJSON(t, "/api/v1/chat/stop", map[string]string{"session_id": "session-x"})
	require.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"stopped":false`)
}
