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

package main

import (
	"fmt"
	"strings"
	"time"

	"scholar-agent/internal/runtime/user"
)

// 列表输出的格式化函数。与网络层解耦，便于单测。

// shortID 截取 id 前 8 位做列表展示
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSession(id, title string, updatedAt time.Time) string {
	if title == "" {
		title = "(未命名)"
	}
	return fmt.Sprintf("%s  %s  %s", shortID(id), updatedAt.Format("2006-01-02 15:04"), title)
}

func formatDocument(id, name, fileType string, size int64) string {
	return fmt.Sprintf("%s  %-6s %8s  %s", shortID(id), fileType, formatSize(size), name)
}

// formatSize 人类可读的文件大小
func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func formatProfile(userID, displayName, modelMode string, balance float64, freeQuota int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "用户:   %s\n", userID)
	if displayName != "" {
		fmt.Fprintf(&b, "昵称:   %s\n", displayName)
	}
	fmt.Fprintf(&b, "模式:   %s\n", modelMode)
	fmt.Fprintf(&b, "余额:   %.2f\n", balance)
	fmt.Fprintf(&b, "今日免费额度: %d\n", freeQuota)
	return b.String()
}

// profileModeUpdate 只更新模式字段的档案增量
func profileModeUpdate(mode string) user.ProfileUpdate {
	return user.ProfileUpdate{ModelMode: &mode}
}
