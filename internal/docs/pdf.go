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

// Package docs 上传文档的本地探查：页数、类型判定。
// 只读取文件信息，不做解析入库，检索属于生产后端。
package docs

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/unidoc/unipdf/v3/model"
)

// Info 探查结果
type Info struct {
	FileType  string // pdf / txt / md / 扩展名
	PageCount int    // 仅 PDF，其余为 0
}

// FileType 按扩展名判定文档类型，无扩展名返回 bin
func FileType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}

// Probe 探查一份上传文档。PDF 解析失败不视为上传失败，
// 返回零页数与错误，调用方自行决定是否记日志放行。
func Probe(filename string, data []byte) (*Info, error) {
	info := &Info{FileType: FileType(filename)}
	if info.FileType != "pdf" {
		return info, nil
	}
	n, err := PageCount(data)
	if err != nil {
		return info, err
	}
	info.PageCount = n
	return info, nil
}

// PageCount 读取 PDF 页数
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("PDF 内容为空")
	}
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("打开 PDF failed: %w", err)
	}
	n, err := reader.GetNumPages()
	if err != nil {
		return 0, fmt.Errorf("获取页数failed: %w", err)
	}
	return n, nil
}
