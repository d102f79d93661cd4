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

package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite"

	pkgerrors "scholar-agent/pkg/errors"
)

// SQLiteStore 单机部署的默认存储，建表在打开时完成
type SQLiteStore struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS auth_users (
		username      TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id          TEXT PRIMARY KEY,
		display_name     TEXT NOT NULL DEFAULT '',
		avatar_url       TEXT NOT NULL DEFAULT '',
		research_field   TEXT NOT NULL DEFAULT '',
		knowledge_level  TEXT NOT NULL DEFAULT 'intermediate',
		institution      TEXT NOT NULL DEFAULT '',
		bio              TEXT NOT NULL DEFAULT '',
		model_mode       TEXT NOT NULL DEFAULT 'free',
		balance          REAL NOT NULL DEFAULT 0,
		free_quota_today INTEGER NOT NULL DEFAULT 0,
		free_quota_date  TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS usage_records (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		session_id  TEXT,
		mode        TEXT NOT NULL DEFAULT 'normal',
		cost        REAL NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_records(user_id, created_at)`,
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

func (s *SQLiteStore) CreateAuthUser(ctx context.Context, u *AuthUser) error {
	if u == nil || u.Username == "" {
		return pkgerrors.ErrInvalidArg
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM auth_users WHERE username = ?`, u.Username).Scan(&exists)
	if err == nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "用户名已存在")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auth_users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.CreatedAt)
	return err
}

func (s *SQLiteStore) GetAuthUser(ctx context.Context, username string) (*AuthUser, error) {
	var u AuthUser
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, created_at FROM auth_users WHERE username = ?`, username).
		Scan(&u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const profileColumns = `user_id, display_name, avatar_url, research_field, knowledge_level,
	institution, bio, model_mode, balance, free_quota_today, free_quota_date, created_at, updated_at`

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.ResearchField, &p.KnowledgeLevel,
		&p.Institution, &p.Bio, &p.ModelMode, &p.Balance, &p.FreeQuotaToday, &p.FreeQuotaDate,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, pkgerrors.ErrInvalidArg
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	def := defaultProfile(userID)
	// 并发首访可能撞插入，OR IGNORE 后以库里那行为准
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profiles
		 (user_id, display_name, knowledge_level, model_mode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		def.UserID, def.DisplayName, def.KnowledgeLevel, def.ModelMode, def.CreatedAt, def.UpdatedAt); err != nil {
		return nil, err
	}
	return scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.apply(upd)
	_, err = s.db.ExecContext(ctx,
		`UPDATE user_profiles SET display_name = ?, avatar_url = ?, research_field = ?,
		 knowledge_level = ?, institution = ?, bio = ?, model_mode = ?, updated_at = ?
		 WHERE user_id = ?`,
		p.DisplayName, p.AvatarURL, p.ResearchField, p.KnowledgeLevel,
		p.Institution, p.Bio, p.ModelMode, p.UpdatedAt, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) AddBalance(ctx context.Context, userID string, amount float64) (*Profile, error) {
	if userID == "" || amount <= 0 {
		return nil, pkgerrors.ErrInvalidArg
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles SET balance = balance + ?, updated_at = ? WHERE user_id = ?`,
		amount, time.Now(), userID); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, userID)
}

func (s *SQLiteStore) ConsumeFree(ctx context.Context, userID, date string, limit int) (int, error) {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var used int
	var recorded string
	if err := tx.QueryRowContext(ctx,
		`SELECT free_quota_today, free_quota_date FROM user_profiles WHERE user_id = ?`, userID).
		Scan(&used, &recorded); err != nil {
		return 0, err
	}
	if recorded != date {
		used = 0
	}
	if used >= limit {
		return used, pkgerrors.ErrFreeQuotaExceeded
	}
	used++
	if _, err := tx.ExecContext(ctx,
		`UPDATE user_profiles SET free_quota_today = ?, free_quota_date = ?, updated_at = ? WHERE user_id = ?`,
		used, date, time.Now(), userID); err != nil {
		return 0, err
	}
	return used, tx.Commit()
}

func (s *SQLiteStore) DebitBalance(ctx context.Context, userID string, cost float64) (float64, error) {
	if cost < 0 {
		return 0, pkgerrors.ErrInvalidArg
	}
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if cost == 0 {
		return p.Balance, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`,
		cost, time.Now(), userID, cost)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return p.Balance, pkgerrors.ErrInsufficientBalance
	}
	p, err = s.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.Balance, nil
}

func (s *SQLiteStore) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec == nil || rec.UserID == "" {
		return pkgerrors.ErrInvalidArg
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, user_id, session_id, mode, cost, token_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, rec.Mode, rec.Cost, rec.TokenCount, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) ListUsage(ctx context.Context, userID string, limit int) ([]*UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, mode, cost, token_count, created_at
		 FROM usage_records WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var sessionID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &sessionID, &rec.Mode, &rec.Cost,
			&rec.TokenCount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.SessionID = sessionID.String
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
