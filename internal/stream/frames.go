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

// Package stream 实现 Agent 事件流的客户端引擎：打开 SSE 连接、
// 把字节流切成帧、将帧折叠进任务状态与回答累积器，并保证无论正常结束、
// 取消还是网络错误，一轮对话恰好终结一次。
package stream

import "encoding/json"

// Frame 事件流中的一帧：类型加未解码的 JSON 载荷。
// 载荷的具体结构由帧类型决定，解码推迟到各消费方。
type Frame struct {
	Type string
	Data json.RawMessage
}
