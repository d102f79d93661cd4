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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "scholar-agent/pkg/errors"
)

func TestLogin_SetsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"token":"jwt-abc"}`))
		case "/api/v1/sessions":
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"sessions":[]}`))
		}
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	token, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", token)

	_, err = c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer jwt-abc", gotAuth)
}

func TestAPIError_QuotaSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"free_quota_exceeded","message":"今日免费额度已用完"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	err := c.StopChat(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrFreeQuotaExceeded))
}

func TestAPIError_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found","message":"会话不存在"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	_, err := c.GetSession(context.Background(), "nope")
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
}

func TestUploadDocument_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/documents/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "paper.pdf", hdr.Filename)
		assert.Equal(t, "folder-1", r.FormValue("folder_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"doc-1","original_name":"paper.pdf","file_type":"pdf"}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	doc, err := c.UploadDocument(context.Background(), "paper.pdf", strings.NewReader("%PDF"), "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "pdf", doc.FileType)
}

func TestListMessages_CarriesTaskMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[
			{"id":"m1","role":"user","content":"问题"},
			{"id":"m2","role":"assistant","content":"答案","metadata":{
				"task_plan":[{"id":"s1","action":"检索文献","status":"done"}],
				"agent_thought":"完成"
			}}
		]}`))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	msgs, err := c.ListMessages(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Metadata)
	require.Len(t, msgs[1].Metadata.TaskPlan, 1)
	assert.Equal(t, "检索文献", msgs[1].Metadata.TaskPlan[0].Action)
}
