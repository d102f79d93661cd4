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

package task

import (
	"encoding/json"
	"fmt"
)

// 事件类型常量；与网关/生产端共用同一套协议词汇
const (
	EventPlan         = "plan"
	EventThinking     = "thinking"
	EventThought      = "thought"
	EventStepStart    = "step_start"
	EventStepProgress = "step_progress"
	EventStepComplete = "step_complete"
	EventStream       = "stream"
	EventCost         = "cost"
	EventDone         = "done"
	EventDocUpdated   = "doc_updated"
	EventError        = "error"

	EventUserMessage      = "user_message"
	EventAssistantMessage = "assistant_message"
	EventAgentContinuing  = "agent_continuing"
)

// PlanStep plan 帧中的一条步骤。老版生产端用 tool 键，新版用 tool_name，两者都认。
type PlanStep struct {
	ID       string          `json:"id"`
	Action   string          `json:"action"`
	Tool     string          `json:"tool,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Status   StepStatus      `json:"status,omitempty"`
}

func (p PlanStep) tool() string {
	if p.ToolName != "" {
		return p.ToolName
	}
	return p.Tool
}

type planPayload struct {
	Plan    []PlanStep `json:"plan"`
	Thought string     `json:"thought,omitempty"`
}

type thoughtPayload struct {
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

type stepStartPayload struct {
	StepID   string          `json:"step_id"`
	Action   string          `json:"action,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

type stepProgressPayload struct {
	StepID   string  `json:"step_id"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

type stepCompletePayload struct {
	StepID         string          `json:"step_id"`
	Result         json.RawMessage `json:"result,omitempty"`
	ThoughtSummary string          `json:"thought_summary,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// Apply 将一帧折叠进状态：(State, Frame) → State 的显式转换函数。
// stream/done/error 不属于任务状态，由 Turn 层处理；未知类型直接忽略（向前兼容）。
// 载荷解码失败返回错误，调用方记日志后继续——单个坏帧不终止流。
// 依赖的顺序保证：同一 step_id 的 start 先于 progress/complete；不同 id 之间可任意交错。
func (s *State) Apply(eventType string, data json.RawMessage) error {
	switch eventType {
	case EventPlan:
		var p planPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode plan frame failed: %w", err)
		}
		s.mergePlan(p.Plan)
		s.applyThought(p.Thought)
	case EventThinking, EventThought:
		var p thoughtPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode thought frame failed: %w", err)
		}
		text := p.Message
		if text == "" {
			text = p.Content
		}
		s.applyThought(text)
	case EventStepStart:
		var p stepStartPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode step_start frame failed: %w", err)
		}
		s.applyStepStart(p)
	case EventStepProgress:
		var p stepProgressPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode step_progress frame failed: %w", err)
		}
		s.applyStepProgress(p)
	case EventStepComplete:
		var p stepCompletePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode step_complete frame failed: %w", err)
		}
		s.applyStepComplete(p)
	case EventCost:
		var u Usage
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("decode cost frame failed: %w", err)
		}
		s.Usage = &u
	case EventDocUpdated:
		var d DocEvent
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("decode doc_updated frame failed: %w", err)
		}
		if d.DocID != "" {
			s.DocEvents = append(s.DocEvents, d)
		}
	}
	return nil
}

// mergePlan 将新计划并入现有步骤表。同 id 的步骤保留已达成的状态（不回退、done 粘滞），
// 仅刷新描述与工具元数据；新 id 按计划序追加。计划帧可能晚于 step_start 到达，
// 已观察到的进度不能被它抹掉。
func (s *State) mergePlan(incoming []PlanStep) {
	for _, in := range incoming {
		if in.ID == "" {
			continue
		}
		st, ok := s.index[in.ID]
		if !ok {
			ns := &Step{
				ID:       in.ID,
				Action:   in.Action,
				Status:   normalizeStatus(in.Status),
				ToolName: in.tool(),
				Params:   cloneRaw(in.Params),
			}
			if ns.Action == "" {
				ns.Action = in.ID
			}
			if ns.Status == StepDone {
				ns.Progress = 1
			}
			s.Steps = append(s.Steps, ns)
			s.index[ns.ID] = ns
			continue
		}
		if in.Action != "" {
			st.Action = in.Action
		}
		if t := in.tool(); t != "" {
			st.ToolName = t
		}
		if len(in.Params) > 0 {
			st.Params = cloneRaw(in.Params)
		}
		s.upgradeStatus(st, normalizeStatus(in.Status))
	}
}

// upgradeStatus 仅允许状态前进；到 done 时进度钉在 1.0
func (s *State) upgradeStatus(st *Step, to StepStatus) {
	if to.rank() > st.Status.rank() {
		st.Status = to
		if to == StepDone {
			st.Progress = 1
		}
	}
}

// applyThought 更新独立思考并追加时间线条目；仅与时间线末尾的相邻条目去重
// （上游在"思考中"会原样重发同一段思考）
func (s *State) applyThought(text string) {
	if text == "" {
		return
	}
	s.Thought = text
	if n := len(s.Timeline); n > 0 {
		last := s.Timeline[n-1]
		if last.Type == TimelineThought && last.Content == text {
			return
		}
	}
	s.Timeline = append(s.Timeline, TimelineEntry{Type: TimelineThought, Content: text})
}

func (s *State) applyStepStart(p stepStartPayload) {
	if p.StepID == "" {
		return
	}
	st := s.ensureStep(p.StepID)
	if st.Status == StepDone {
		// done 粘滞：迟到的 start 不回退状态，也不再写叙事
		return
	}
	if p.Action != "" {
		st.Action = p.Action
	}
	if p.ToolName != "" {
		st.ToolName = p.ToolName
	}
	if len(p.Params) > 0 {
		st.Params = cloneRaw(p.Params)
	}
	st.Status = StepRunning
	st.Message = ""
	s.Timeline = append(s.Timeline, TimelineEntry{
		Type:     TimelineStepStart,
		StepID:   st.ID,
		ToolName: st.ToolName,
		Action:   st.Action,
	})
}

func (s *State) applyStepProgress(p stepProgressPayload) {
	if p.StepID == "" {
		return
	}
	st := s.ensureStep(p.StepID)
	if st.Status == StepDone {
		// 完成是终态，迟到的进度忽略
		return
	}
	st.Status = StepRunning
	st.Progress = clamp01(p.Progress)
	if p.Message != "" {
		st.Message = p.Message
	}
}

// applyStepComplete 幂等：同一步骤的重复完成帧在第一次之后不改变任何状态
func (s *State) applyStepComplete(p stepCompletePayload) {
	if p.StepID == "" {
		return
	}
	st := s.ensureStep(p.StepID)
	if st.Status == StepDone {
		return
	}
	st.Status = StepDone
	st.Progress = 1
	st.Message = ""
	if len(p.Result) > 0 {
		st.Result = cloneRaw(p.Result)
	}
	if p.ToolName != "" {
		st.ToolName = p.ToolName
	}
	if len(p.Params) > 0 {
		st.Params = cloneRaw(p.Params)
	}
	if p.ThoughtSummary != "" {
		s.StepThoughts[p.StepID] = p.ThoughtSummary
	}
	s.Timeline = append(s.Timeline, TimelineEntry{
		Type:   TimelineStepDone,
		StepID: st.ID,
		Result: completionSummary(p),
	})
}

// completionSummary 时间线展示用的完成摘要：优先 thought_summary，否则原样携带 result 文本
func completionSummary(p stepCompletePayload) string {
	if p.ThoughtSummary != "" {
		return p.ThoughtSummary
	}
	if len(p.Result) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(p.Result, &str); err == nil {
		return str
	}
	return string(p.Result)
}

func normalizeStatus(in StepStatus) StepStatus {
	switch in {
	case StepRunning, StepDone:
		return in
	default:
		return StepPending
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if len(r) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
