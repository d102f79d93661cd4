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

// Package emitter scholard 网关的事件帧生产方：把一次 agent 运行
// （剧本回放或模型直连）写成 internal/stream 消费的 SSE 协议。
// 网关不做规划推理，agent 模式的运行全部来自剧本。
package emitter

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	pkgerrors "scholar-agent/pkg/errors"
)

// EmitFunc 发出一帧。payload 必须可 JSON 序列化。
type EmitFunc func(event string, payload map[string]interface{}) error

// SSEWriter 把帧写成 event:/data: 文本块，块间空行分隔。
// 每个载荷补一个 timestamp 字段，与生产后端的输出一致（消费方忽略它）。
// 并发安全：stop 通知与帧写入可能来自不同 goroutine。
type SSEWriter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewSSEWriter 创建 SSE 写入器
func NewSSEWriter(w io.Writer) *SSEWriter {
	return &SSEWriter{w: w, now: time.Now}
}

// Emit 写出一帧。下游断开时返回写错误，调用方应停止生产。
func (s *SSEWriter) Emit(event string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = s.now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal %s frame", event)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, "event: "+event+"\ndata: "+string(data)+"\n\n"); err != nil {
		return pkgerrors.Wrapf(err, "write %s frame", event)
	}
	return nil
}
