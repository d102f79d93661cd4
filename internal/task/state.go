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

// Package task 维护一轮对话内 Agent 任务的实时状态：计划、步骤状态、时间线与思考。
// 状态由事件帧按序折叠得到（reconcile.go），单 goroutine 写入，对外只发布深拷贝。
package task

import (
	"encoding/json"
)

// StepStatus 步骤状态，只允许单向推进：pending → running → done
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
)

// rank 状态序，done 粘滞不可回退
func (s StepStatus) rank() int {
	switch s {
	case StepRunning:
		return 1
	case StepDone:
		return 2
	default:
		return 0
	}
}

// Step 任务计划中的一步；JSON 键与持久化的 task_plan 保持一致
type Step struct {
	ID       string          `json:"id"`
	Action   string          `json:"action"`
	Status   StepStatus      `json:"status"`
	Progress float64         `json:"progress,omitempty"`
	Message  string          `json:"message,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// TimelineEntry 时间线条目：叙事日志，与步骤状态表相互独立、由同一折叠函数同步推进。
// JSON 键与持久化的 timeline 保持一致（stepId/toolName 为历史遗留的驼峰）。
type TimelineEntry struct {
	Type     TimelineKind `json:"type"`
	Content  string       `json:"content,omitempty"`
	StepID   string       `json:"stepId,omitempty"`
	ToolName string       `json:"toolName,omitempty"`
	Action   string       `json:"action,omitempty"`
	Result   string       `json:"result,omitempty"`
}

// TimelineKind 时间线条目类型
type TimelineKind string

const (
	TimelineThought   TimelineKind = "thought"
	TimelineStepStart TimelineKind = "step_start"
	TimelineStepDone  TimelineKind = "step_done"
)

// Usage 计费侧信息（cost 帧），与任务状态正交，仅供展示
type Usage struct {
	Cost      float64 `json:"cost"`
	Balance   float64 `json:"balance"`
	ModelMode string  `json:"model_mode,omitempty"`
}

// DocEvent 文档变更通知（doc_updated 帧），供外层触发刷新
type DocEvent struct {
	DocID  string `json:"doc_id"`
	Action string `json:"action,omitempty"`
}

// State 一轮对话的任务状态聚合。每个用户回合新建一份，终态后冻结入消息元数据。
// 步骤序 = 计划序（首次出现顺序），只增不删。
type State struct {
	Steps        []*Step
	StepThoughts map[string]string
	Timeline     []TimelineEntry
	Thought      string
	Usage        *Usage
	DocEvents    []DocEvent

	index map[string]*Step
}

// NewState 创建空状态
func NewState() *State {
	return &State{
		StepThoughts: make(map[string]string),
		index:        make(map[string]*Step),
	}
}

// Step 按 id 查找步骤，不存在时返回 nil
func (s *State) Step(id string) *Step {
	return s.index[id]
}

// ensureStep 返回 id 对应的步骤；未知 id 合成一条最小记录而不是丢帧
func (s *State) ensureStep(id string) *Step {
	if st, ok := s.index[id]; ok {
		return st
	}
	st := &Step{ID: id, Action: id, Status: StepPending}
	s.Steps = append(s.Steps, st)
	s.index[id] = st
	return st
}

// NonTrivial 本轮是否出现过至少一个步骤（决定是否随消息持久化元数据）
func (s *State) NonTrivial() bool {
	return len(s.Steps) > 0
}

// Clone 深拷贝，供发布到 UI 或冻结入消息；原状态继续由消费 goroutine 独占写
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := NewState()
	c.Steps = make([]*Step, 0, len(s.Steps))
	for _, st := range s.Steps {
		cp := *st
		cp.Params = append(json.RawMessage(nil), st.Params...)
		cp.Result = append(json.RawMessage(nil), st.Result...)
		c.Steps = append(c.Steps, &cp)
		c.index[cp.ID] = &cp
	}
	for k, v := range s.StepThoughts {
		c.StepThoughts[k] = v
	}
	c.Timeline = append([]TimelineEntry(nil), s.Timeline...)
	c.Thought = s.Thought
	if s.Usage != nil {
		u := *s.Usage
		c.Usage = &u
	}
	c.DocEvents = append([]DocEvent(nil), s.DocEvents...)
	return c
}

// Seed 以持久化快照初始化状态，供会话重载时恢复上一轮的最终视图。
// 入参均被拷贝，调用方可继续持有。
func (s *State) Seed(plan []*Step, thoughts map[string]string, timeline []TimelineEntry, thought string) {
	for _, st := range plan {
		if st == nil || st.ID == "" {
			continue
		}
		cp := *st
		s.Steps = append(s.Steps, &cp)
		s.index[cp.ID] = &cp
	}
	for k, v := range thoughts {
		s.StepThoughts[k] = v
	}
	s.Timeline = append(s.Timeline, timeline...)
	s.Thought = thought
}
