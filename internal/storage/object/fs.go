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

package object

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "scholar-agent/pkg/errors"
)

// FSStore 本地文件系统对象存储。所有对象平铺在 root 之下，
// 键里带路径分隔符或 .. 的一律拒绝，防止越出目录。
type FSStore struct {
	root string
}

// NewFSStore 创建文件系统对象存储，目录不存在时建立
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "对象存储目录不能为空")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, pkgerrors.Wrap(err, "create object dir")
	}
	return &FSStore{root: root}, nil
}

// keyPath 键到路径的映射，拒绝任何形式的目录穿越
func (s *FSStore) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "非法对象键")
	}
	return filepath.Join(s.root, key), nil
}

func (s *FSStore) Put(ctx context.Context, key string, data io.Reader, size int64) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	// 先写临时文件再改名，避免上传半截的文件被当成完整对象读走
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return pkgerrors.Wrap(err, "create temp object")
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return pkgerrors.Wrap(err, "write object data")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return pkgerrors.Wrap(err, "close temp object")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return pkgerrors.Wrap(err, "finalize object")
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open object")
	}
	return f, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return pkgerrors.ErrNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(err, "remove object")
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, pkgerrors.Wrap(err, "stat object")
	}
	return true, nil
}

func (s *FSStore) Close() error { return nil }
