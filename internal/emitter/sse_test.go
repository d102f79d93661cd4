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

package emitter

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-agent/internal/stream"
	"scholar-agent/internal/task"
)

func TestSSEWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(&buf)

	require.NoError(t, w.Emit(task.EventPlan, map[string]interface{}{
		"plan": []map[string]interface{}{{"id": "s1", "action": "检索"}},
	}))
	require.NoError(t, w.Emit(task.EventStream, map[string]interface{}{"content": "部分答案"}))

	// 写出的字节必须能被消费端的帧扫描器原样还原
	sc := stream.NewFrameScanner(&buf)
	require.True(t, sc.Scan())
	f := sc.Frame()
	assert.Equal(t, task.EventPlan, f.Type)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Contains(t, payload, "plan")
	assert.Contains(t, payload, "timestamp")

	require.True(t, sc.Scan())
	f = sc.Frame()
	assert.Equal(t, task.EventStream, f.Type)
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "部分答案", payload["content"])

	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
}

func TestSSEWriterNilPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewSSEWriter(&buf)
	require.NoError(t, w.Emit(task.EventDone, nil))

	sc := stream.NewFrameScanner(&buf)
	require.True(t, sc.Scan())
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(sc.Frame().Data, &payload))
	assert.Contains(t, payload, "timestamp")
}
