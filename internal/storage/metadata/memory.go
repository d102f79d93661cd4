package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "scholar-agent/pkg/errors"
)

// MemoryStore 内存元数据存储实现
type MemoryStore struct {
	docs    map[string]*Document
	folders map[string]*Folder
	mu      sync.RWMutex
}

// NewMemoryStore 创建新的内存元数据存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]*Document),
		folders: make(map[string]*Folder),
	}
}

// Create 创建文档元数据
func (s *MemoryStore) Create(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "document already exists")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = doc.CreatedAt
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// Get 根据 ID 获取文档元数据
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

// Update 更新文档元数据
func (s *MemoryStore) Update(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; !exists {
		return pkgerrors.ErrNotFound
	}
	doc.UpdatedAt = time.Now()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// Delete 根据 ID 删除文档元数据
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		return pkgerrors.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// match 文档是否满足过滤条件
func match(doc *Document, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if filter.UserID != "" && doc.UserID != filter.UserID {
		return false
	}
	if filter.FolderID != "" && doc.FolderID != filter.FolderID {
		return false
	}
	if len(filter.Types) > 0 && !contains(filter.Types, doc.FileType) {
		return false
	}
	if len(filter.Status) > 0 && !contains(filter.Status, doc.Status) {
		return false
	}
	if filter.Search != "" &&
		!strings.Contains(strings.ToLower(doc.OriginalName), strings.ToLower(filter.Search)) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// List 列出文档元数据
func (s *MemoryStore) List(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Document
	for _, doc := range s.docs {
		if !match(doc, filter) {
			continue
		}
		cp := *doc
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })

	if pagination != nil {
		start := pagination.Offset
		if start >= len(results) {
			return []*Document{}, nil
		}
		end := start + pagination.Limit
		if pagination.Limit <= 0 || end > len(results) {
			end = len(results)
		}
		results = results[start:end]
	}
	return results, nil
}

// Count 统计文档数量
func (s *MemoryStore) Count(ctx context.Context, filter *Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, doc := range s.docs {
		if match(doc, filter) {
			count++
		}
	}
	return count, nil
}

// CreateFolder 创建文件夹
func (s *MemoryStore) CreateFolder(ctx context.Context, f *Folder) error {
	if f == nil || f.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	cp := *f
	s.folders[f.ID] = &cp
	return nil
}

// ListFolders 列出用户的文件夹，带文档计数
func (s *MemoryStore) ListFolders(ctx context.Context, userID string) ([]*Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Folder
	for _, f := range s.folders {
		if userID != "" && f.UserID != userID {
			continue
		}
		cp := *f
		for _, doc := range s.docs {
			if doc.FolderID == f.ID {
				cp.DocumentCount++
			}
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteFolder 删除文件夹，夹内文档归位到根目录
func (s *MemoryStore) DeleteFolder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.folders[id]; !exists {
		return pkgerrors.ErrNotFound
	}
	for _, doc := range s.docs {
		if doc.FolderID == id {
			doc.FolderID = ""
		}
	}
	delete(s.folders, id)
	return nil
}

// Close 关闭存储连接
func (s *MemoryStore) Close() error {
	return nil
}
