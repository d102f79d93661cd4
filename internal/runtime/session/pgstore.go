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

package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "scholar-agent/pkg/errors"
)

// PGStore PostgreSQL 实现，多实例网关共享会话时使用
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore 按 dsn 建立连接池并探活
func NewPGStore(ctx context.Context, dsn string, poolSize int) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse postgres dsn")
	}
	if poolSize > 0 {
		config.MaxConns = int32(poolSize)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "ping postgres")
	}
	return &PGStore{pool: pool}, nil
}

// InitSchema 建表。部署方没跑迁移时可在启动阶段显式调用。
func (s *PGStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			msg_type   TEXT NOT NULL DEFAULT 'text',
			metadata   TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return pkgerrors.Wrap(err, "init postgres schema")
		}
	}
	return nil
}

func (s *PGStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return pkgerrors.ErrInvalidArg
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *PGStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat_sessions
		 WHERE ($1 = '' OR user_id = $1) ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = $2 WHERE id = $3`, title, time.Now(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteSession(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}

func (s *PGStore) AppendMessage(ctx context.Context, m *Message) error {
	if m == nil || m.SessionID == "" {
		return pkgerrors.ErrInvalidArg
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	meta, err := marshalMetadata(m.Metadata)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	cmd, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, time.Now(), m.SessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pkgerrors.ErrNotFound
	}
	var metaArg any
	if meta.Valid {
		metaArg = meta.String
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, msg_type, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SessionID, m.Role, m.Content, m.MsgType, metaArg, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, msg_type, metadata, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		var m Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.MsgType, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.Metadata, err = unmarshalMetadata(meta.String); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
