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

package app

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"scholar-agent/internal/docs"
	"scholar-agent/internal/storage/metadata"
	"scholar-agent/internal/storage/object"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

// DocumentService 文档门面：API 层只依赖这里，不直接碰两个存储。
// 字节进 object.Store，行进 metadata.Store，同一个文档 id 串起来。
type DocumentService struct {
	meta metadata.Store
	obj  object.Store
	log  *log.Logger
}

// NewDocumentService 创建文档门面。lg 可为 nil。
func NewDocumentService(meta metadata.Store, obj object.Store, lg *log.Logger) *DocumentService {
	if lg == nil {
		lg = log.Discard()
	}
	return &DocumentService{meta: meta, obj: obj, log: lg}
}

// Upload 收一份上传文档：落字节、探查页数、建元数据行。
// PDF 解析失败不拦上传，页数记 0（生产后端同样先收下再说）。
func (s *DocumentService) Upload(ctx context.Context, userID, folderID, originalName string, data []byte) (*metadata.Document, error) {
	if originalName == "" || len(data) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "上传文件为空")
	}
	id := "doc-" + uuid.NewString()
	info, err := docs.Probe(originalName, data)
	if err != nil {
		s.log.Warn("document probe failed", "name", originalName, "err", err)
	}
	filename := id + "." + info.FileType

	if err := s.obj.Put(ctx, filename, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, pkgerrors.Wrap(err, "store document bytes")
	}
	doc := &metadata.Document{
		ID:           id,
		UserID:       userID,
		FolderID:     folderID,
		Filename:     filename,
		OriginalName: originalName,
		FileSize:     int64(len(data)),
		FileType:     info.FileType,
		PageCount:    info.PageCount,
		Status:       metadata.StatusUploaded,
		CreatedAt:    time.Now(),
	}
	if err := s.meta.Create(ctx, doc); err != nil {
		// 元数据没立住就把字节收回，不留孤儿文件
		_ = s.obj.Delete(ctx, filename)
		return nil, pkgerrors.Wrap(err, "create document metadata")
	}
	s.log.Info("document uploaded",
		"doc_id", id,
		"user_id", userID,
		"type", info.FileType,
		"pages", info.PageCount,
		"size", len(data),
	)
	return doc, nil
}

// List 列出用户文档，folderID/search 可为空
func (s *DocumentService) List(ctx context.Context, userID, folderID, search string) ([]*metadata.Document, error) {
	return s.meta.List(ctx, &metadata.Filter{
		UserID:   userID,
		FolderID: folderID,
		Search:   search,
	}, nil)
}

// Get 按 id 取文档元数据
func (s *DocumentService) Get(ctx context.Context, id string) (*metadata.Document, error) {
	return s.meta.Get(ctx, id)
}

// Delete 删除文档：元数据行与字节一起走
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.meta.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.obj.Delete(ctx, doc.Filename); err != nil {
		// 行已删成功，字节删不掉只记日志，别让调用方误以为文档还在
		s.log.Warn("document bytes delete failed", "doc_id", id, "err", err)
	}
	return nil
}

// CreateFolder 建文件夹
func (s *DocumentService) CreateFolder(ctx context.Context, userID, name, parentID string) (*metadata.Folder, error) {
	if name == "" {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "文件夹名不能为空")
	}
	f := &metadata.Folder{
		ID:        "folder-" + uuid.NewString(),
		UserID:    userID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	if err := s.meta.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFolders 列出用户文件夹（带文档计数）
func (s *DocumentService) ListFolders(ctx context.Context, userID string) ([]*metadata.Folder, error) {
	return s.meta.ListFolders(ctx, userID)
}
