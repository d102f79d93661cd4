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

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/stream"
	"scholar-agent/internal/task"
)

// 流消费回调到 UI 的桥接消息。Hooks 在 turn goroutine 上同步触发，
// 经 program.Send 转发后由 Update 在 UI goroutine 上串行消费，
// 模型字段因此无需加锁。

// sessionMsg 服务端下发了会话 id（首轮）
type sessionMsg struct {
	id string
}

// stateMsg 任务状态快照更新（深拷贝，可安全持有）
type stateMsg struct {
	snapshot *task.State
}

// answerChunkMsg 增量回答片段
type answerChunkMsg struct {
	fragment string
	total    string
}

// usageMsg 计费帧
type usageMsg struct {
	usage task.Usage
}

// docMsg 文档变更通知
type docMsg struct {
	event task.DocEvent
}

// turnDoneMsg 整轮结束（完成/取消/出错都会到达，恰好一次）
type turnDoneMsg struct {
	result stream.Result
}

// historyMsg 恢复会话时的历史消息加载结果
type historyMsg struct {
	messages []*session.Message
	err      error
}

// setProgramMsg 注入 program 引用，turn goroutine 靠它回发消息
type setProgramMsg struct {
	program *tea.Program
}
