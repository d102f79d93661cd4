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

// Package object 上传文档的原始字节存储。键即落盘文件名（id+扩展名），
// 原始文件名、页数等元数据在 metadata 包，两边通过文档 id 关联。
package object

import (
	"context"
	"io"
)

// Store 对象存储接口。实现：内存（测试）、本地文件系统。
// 找不到的对象返回 pkgerrors.ErrNotFound。
type Store interface {
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, data io.Reader, size int64) error
	// Get 按键读取，调用方负责 Close
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除对象
	Delete(ctx context.Context, key string) error
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Close 关闭存储
	Close() error
}
