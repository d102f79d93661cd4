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

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const (
	frameScannerInitialBuffer = 64 * 1024
	frameScannerMaxBuffer     = 2 * 1024 * 1024
)

// FrameScanner 将 SSE 字节流增量切分为帧。块由空行分隔；块内第一条
// event: 行定类型，第一条 data: 行携带 JSON 载荷。用法同 bufio.Scanner：
//
//	fs := NewFrameScanner(body)
//	for fs.Scan() {
//	    frame := fs.Frame()
//	    ...
//	}
//	if err := fs.Err(); err != nil { ... }
//
// 传输层任意拆分字节不影响产出的帧序列；一个 FrameScanner 只能消费一条流。
type FrameScanner struct {
	sc    *bufio.Scanner
	frame Frame
	first bool

	// 当前块已收的字段
	eventType string
	data      []byte
	sawData   bool
}

// NewFrameScanner 包装一条字节流。单帧载荷上限 2MiB。
func NewFrameScanner(r io.Reader) *FrameScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, frameScannerInitialBuffer), frameScannerMaxBuffer)
	return &FrameScanner{sc: sc, first: true}
}

// Scan 推进到下一有效帧。坏块（缺类型或载荷不是合法 JSON）跳过不报错，
// 流必须继续流动。返回 false 表示流结束或读取出错；
// 流尾未以空行终结的残块不会被当作帧吐出。
func (f *FrameScanner) Scan() bool {
	for f.sc.Scan() {
		line := f.sc.Text()
		if f.first {
			line = strings.TrimPrefix(line, "\uFEFF")
			f.first = false
		}
		if line == "" {
			// 块结束，够格才吐帧
			typ, data, ok := f.takeBlock()
			if ok {
				f.frame = Frame{Type: typ, Data: data}
				return true
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		field, value := line[:idx], line[idx+1:]
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			if f.eventType == "" {
				f.eventType = value
			}
		case "data":
			if !f.sawData {
				f.sawData = true
				f.data = []byte(value)
			}
		}
		// id / retry / 其余字段与本协议无关，忽略
	}
	// 流结束：残块丢弃，不提前成帧
	f.eventType, f.data, f.sawData = "", nil, false
	return false
}

func (f *FrameScanner) takeBlock() (string, json.RawMessage, bool) {
	typ, data, sawData := f.eventType, f.data, f.sawData
	f.eventType, f.data, f.sawData = "", nil, false
	if typ == "" || !sawData || !json.Valid(data) {
		return "", nil, false
	}
	return typ, json.RawMessage(data), true
}

// Frame 返回最近一次 Scan 产出的帧。仅在 Scan 返回 true 后有效。
func (f *FrameScanner) Frame() Frame {
	return f.frame
}

// Err 返回底层读取错误；正常到达流尾时为 nil。
func (f *FrameScanner) Err() error {
	return f.sc.Err()
}
