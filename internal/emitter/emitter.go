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
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"scholar-agent/pkg/log"
)

// ModeAgent / ModeNormal 与 chat/stream 请求体里的 mode 字段对应
const (
	ModeAgent  = "agent"
	ModeNormal = "normal"
)

// defaultFrameDelay agent 回放的帧间停顿，模拟真实后端的节奏
const defaultFrameDelay = 80 * time.Millisecond

// RunInput 一次运行的输入
type RunInput struct {
	Message string
	Mode    string
	// History 本会话此前的对话消息，仅 normal 模式使用
	History []*schema.Message
}

// Emitter 按模式产出事件帧：agent 走剧本回放，normal 直连模型。
type Emitter struct {
	scenarios []*Scenario
	relay     *Relay
	delay     time.Duration
	log       *log.Logger
}

// NewEmitter 创建发射器。scenarioDir 为空或加载失败时用内置剧本兜底，
// 保证开发网关在没有剧本文件时 agent 模式仍可用。
func NewEmitter(scenarioDir string, relay *Relay, lg *log.Logger) *Emitter {
	if lg == nil {
		lg = log.Discard()
	}
	var scenarios []*Scenario
	if scenarioDir != "" {
		loaded, err := LoadScenarioDir(scenarioDir)
		if err != nil {
			lg.Warn("剧本目录加载失败，使用内置剧本", "dir", scenarioDir, "error", err)
		} else {
			scenarios = loaded
			lg.Info("剧本加载完成", "dir", scenarioDir, "count", len(loaded))
		}
	}
	if len(scenarios) == 0 {
		scenarios = []*Scenario{builtinScenario()}
	}
	return &Emitter{scenarios: scenarios, relay: relay, delay: defaultFrameDelay, log: lg}
}

// SetFrameDelay 调整帧间停顿（测试传 0）
func (e *Emitter) SetFrameDelay(d time.Duration) { e.delay = d }

// Run 执行一次并把帧写给 emit，返回完整答案文本。
func (e *Emitter) Run(ctx context.Context, in RunInput, emit EmitFunc) (string, error) {
	if in.Mode == ModeNormal && e.relay != nil {
		return e.relay.Run(ctx, in.History, in.Message, emit)
	}
	sc := PickScenario(e.scenarios, in.Message)
	return Replay(ctx, sc, emit, e.delay)
}

// builtinScenario 无剧本文件时的兜底，一个最小的文献检索流程。
func builtinScenario() *Scenario {
	return &Scenario{
		Name:    "default_research",
		Thought: "先检索相关文献，再汇总要点给出回答。",
		Plan: []ScenarioStep{
			{ID: "s1", Action: "检索相关文献", Tool: "web_search"},
			{ID: "s2", Action: "汇总检索结果并撰写回答", Tool: "summarize"},
		},
		Steps: []StepScript{
			{ID: "s1", Messages: []string{"正在检索相关文献", "筛选高相关结果"}, Result: "命中 5 篇相关文献", ThoughtSummary: "检索完成，进入汇总。"},
			{ID: "s2", Messages: []string{"正在汇总要点"}, Result: "要点汇总完成"},
		},
		Answer: "根据检索到的文献，相关研究主要集中在以下几个方向：方法对比、数据集构建与评测标准。如需更深入的分析，可以指定具体子方向。",
		Cost:   0.01,
	}
}
