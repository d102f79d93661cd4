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

package session

import (
	"context"

	"scholar-agent/internal/task"
)

// FinalizeTurn 写路径：一轮对话终结后把定稿落库。
// 回答为空则什么都不写（流没开起来、或一个字没产出就被停了）；
// 任务快照只在确实出现过步骤时附到消息上。
// 引擎保证每轮 OnFinal 恰好一次，因此这里每轮至多落一条 assistant 消息。
func (m *Manager) FinalizeTurn(ctx context.Context, sessionID, answer string, st *task.State, cancelled bool) (*Message, error) {
	if sessionID == "" || answer == "" {
		return nil, nil
	}
	msg := NewMessage(sessionID, RoleAssistant, answer)
	if st != nil && st.NonTrivial() {
		msg.Metadata = snapshotMetadata(st, cancelled)
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		// 落库失败不能污染本轮内存态，调用方仍持有完整 Result
		m.log.Error("finalize turn persist failed", "session_id", sessionID, "err", err)
		return nil, err
	}
	steps := 0
	if st != nil {
		steps = len(st.Steps)
	}
	m.log.Info("turn persisted",
		"session_id", sessionID,
		"message_id", msg.ID,
		"steps", steps,
		"cancelled", cancelled,
	)
	return msg, nil
}

// snapshotMetadata 把冻结的任务状态折成消息元数据
func snapshotMetadata(st *task.State, cancelled bool) *Metadata {
	meta := &Metadata{
		TaskPlan:     st.Steps,
		AgentThought: st.Thought,
		Timeline:     st.Timeline,
		Cancelled:    cancelled,
	}
	if len(st.StepThoughts) > 0 {
		meta.StepThoughts = st.StepThoughts
	}
	seen := make(map[string]bool)
	for _, step := range st.Steps {
		if step.ToolName == "" || seen[step.ToolName] {
			continue
		}
		seen[step.ToolName] = true
		meta.ToolsUsed = append(meta.ToolsUsed, step.ToolName)
	}
	return meta
}

// LastTaskSnapshot 读路径：扫消息列表，取最新一条带任务快照的 assistant
// 消息并重建任务状态，供重开会话时展示上一轮的计划与步骤。
// 新一轮的工作状态永远从空开始，这个快照只作展示种子。
func LastTaskSnapshot(msgs []*Message) *task.State {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != RoleAssistant || m.Metadata == nil || len(m.Metadata.TaskPlan) == 0 {
			continue
		}
		st := task.NewState()
		st.Seed(m.Metadata.TaskPlan, m.Metadata.StepThoughts, m.Metadata.Timeline, m.Metadata.AgentThought)
		return st
	}
	return nil
}
