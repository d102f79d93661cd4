package metadata

import (
	"context"
	"time"
)

// Store 文档元数据存储接口
type Store interface {
	// Create 创建文档元数据
	Create(ctx context.Context, doc *Document) error
	// Get 根据 ID 获取文档元数据，不存在返回 pkgerrors.ErrNotFound
	Get(ctx context.Context, id string) (*Document, error)
	// Update 更新文档元数据
	Update(ctx context.Context, doc *Document) error
	// Delete 根据 ID 删除文档元数据
	Delete(ctx context.Context, id string) error
	// List 按创建时间倒序列出文档元数据
	List(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Document, error)
	// Count 统计文档数量
	Count(ctx context.Context, filter *Filter) (int64, error)

	// CreateFolder 创建文件夹
	CreateFolder(ctx context.Context, f *Folder) error
	// ListFolders 按创建时间正序列出用户的文件夹，带文档计数
	ListFolders(ctx context.Context, userID string) ([]*Folder, error)
	// DeleteFolder 删除文件夹，夹内文档归位到根目录
	DeleteFolder(ctx context.Context, id string) error

	// Close 关闭存储连接
	Close() error
}

// 文档状态
const (
	StatusUploaded = "uploaded"
	StatusParsed   = "parsed"
)

// Document 文档元数据。Filename 是落盘名（id+扩展名），OriginalName 是上传时的文件名。
type Document struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FolderID     string    `json:"folder_id,omitempty"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"-"`
	FileSize     int64     `json:"file_size"`
	FileType     string    `json:"file_type"`
	PageCount    int       `json:"page_count"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Folder 文件夹。DocumentCount 在列出时统计，不落库。
type Folder struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	ParentID      string    `json:"parent_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	DocumentCount int64     `json:"document_count"`
}

// Filter 过滤条件，零值字段不参与过滤
type Filter struct {
	UserID   string   `json:"user_id"`
	FolderID string   `json:"folder_id"`
	Types    []string `json:"types"`
	Status   []string `json:"status"`
	Search   string   `json:"search"` // 原始文件名子串，大小写不敏感
}

// Pagination 分页参数
type Pagination struct {
	Offset int `json:"offset"` // 偏移量
	Limit  int `json:"limit"`  // 限制数量
}
