package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	pkgerrors "scholar-agent/pkg/errors"
)

// SQLiteStore 单机部署的默认存储，建表在打开时完成
type SQLiteStore struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		folder_id     TEXT NOT NULL DEFAULT '',
		filename      TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_path     TEXT NOT NULL DEFAULT '',
		file_size     INTEGER NOT NULL DEFAULT 0,
		file_type     TEXT NOT NULL DEFAULT '',
		page_count    INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'uploaded',
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS folders (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		name       TEXT NOT NULL,
		parent_id  TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_folder ON documents(folder_id)`,
	`CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id)`,
}

// NewSQLiteStore 打开（或创建）库文件
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open sqlite")
	}
	for _, q := range sqliteSchema {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, pkgerrors.Wrap(err, "init sqlite schema")
		}
	}
	return &SQLiteStore{db: db}, nil
}

const documentColumns = `id, user_id, folder_id, filename, original_name, file_path,
	file_size, file_type, page_count, status, created_at, updated_at`

func (s *SQLiteStore) Create(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = doc.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.FolderID, doc.Filename, doc.OriginalName, doc.Path,
		doc.FileSize, doc.FileType, doc.PageCount, doc.Status, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func scanDocument(scan func(dest ...any) error) (*Document, error) {
	var doc Document
	err := scan(&doc.ID, &doc.UserID, &doc.FolderID, &doc.Filename, &doc.OriginalName, &doc.Path,
		&doc.FileSize, &doc.FileType, &doc.PageCount, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStore) Update(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	doc.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET folder_id = ?, filename = ?, original_name = ?, file_path = ?,
		 file_size = ?, file_type = ?, page_count = ?, status = ?, updated_at = ? WHERE id = ?`,
		doc.FolderID, doc.Filename, doc.OriginalName, doc.Path,
		doc.FileSize, doc.FileType, doc.PageCount, doc.Status, doc.UpdatedAt, doc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

// whereClause 把过滤条件折成 SQL 片段与参数
func whereClause(filter *Filter) (string, []any) {
	if filter == nil {
		return "", nil
	}
	var conds []string
	var args []any
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.FolderID != "" {
		conds = append(conds, "folder_id = ?")
		args = append(args, filter.FolderID)
	}
	if len(filter.Types) > 0 {
		conds = append(conds, "file_type IN (?"+strings.Repeat(", ?", len(filter.Types)-1)+")")
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if len(filter.Status) > 0 {
		conds = append(conds, "status IN (?"+strings.Repeat(", ?", len(filter.Status)-1)+")")
		for _, st := range filter.Status {
			args = append(args, st)
		}
	}
	if filter.Search != "" {
		conds = append(conds, "LOWER(original_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) List(ctx context.Context, filter *Filter, pagination *Pagination) ([]*Document, error) {
	where, args := whereClause(filter)
	q := `SELECT ` + documentColumns + ` FROM documents` + where + ` ORDER BY created_at DESC, id`
	if pagination != nil && pagination.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", pagination.Limit, pagination.Offset)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, filter *Filter) (int64, error) {
	where, args := whereClause(filter)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&count)
	return count, err
}

func (s *SQLiteStore) CreateFolder(ctx context.Context, f *Folder) error {
	if f == nil || f.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.ParentID, f.CreatedAt)
	return err
}

func (s *SQLiteStore) ListFolders(ctx context.Context, userID string) ([]*Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.user_id, f.name, f.parent_id, f.created_at,
		        (SELECT COUNT(*) FROM documents d WHERE d.folder_id = f.id) AS document_count
		 FROM folders f WHERE (? = '' OR f.user_id = ?) ORDER BY f.created_at, f.id`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Folder{}
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ParentID, &f.CreatedAt, &f.DocumentCount); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteFolder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET folder_id = '' WHERE folder_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrNotFound
	}
	return tx.Commit()
}

// Close 关闭存储连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
