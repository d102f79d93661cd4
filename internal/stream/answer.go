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

package stream

import "strings"

// CancelledSuffix 用户中止后追加在回答末尾的标记，随消息持久化
const CancelledSuffix = "\n\n[已停止]"

// Answer 回答累积器：按到达顺序逐字节拼接 stream 帧的文本片段，
// 一轮之内只增不减。不做任何规整或截断。
type Answer struct {
	b strings.Builder
}

// Append 追加一个文本片段
func (a *Answer) Append(fragment string) {
	a.b.WriteString(fragment)
}

// String 当前累积的全文，流式渲染期间随时可读
func (a *Answer) String() string {
	return a.b.String()
}

// Empty 尚未累积任何文本
func (a *Answer) Empty() bool {
	return a.b.Len() == 0
}

// Final 定稿。老版生产端把全文放在 done 帧里而不逐片下发，
// 此时（且仅在累积器为空时）用 done 的 content 兜底；
// 新版生产端发空 done，累积文本即为答案。
func (a *Answer) Final(doneContent string) string {
	if a.b.Len() == 0 && doneContent != "" {
		return doneContent
	}
	return a.b.String()
}
