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

	"scholar-agent/internal/task"
)

// answerChunkRunes 最终答案按多少个 rune 切一帧
const answerChunkRunes = 24

// progressMilestones step_progress 的固定进度点
var progressMilestones = []float64{0.25, 0.5, 0.75, 1.0}

// Replay 把剧本回放成事件帧序列：
// plan → thinking → 逐步 step_start/step_progress/step_complete →
// 答案分片 stream → cost → done。
// delay 是帧间停顿，测试传 0。ctx 取消后立即停止生产（不发 done）。
func Replay(ctx context.Context, sc *Scenario, emit EmitFunc, delay time.Duration) (string, error) {
	pace := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if delay <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			return nil
		}
	}

	steps := make([]map[string]interface{}, 0, len(sc.Plan))
	for _, p := range sc.Plan {
		steps = append(steps, map[string]interface{}{
			"id":     p.ID,
			"action": p.Action,
			"tool":   p.Tool,
			"status": "pending",
		})
	}
	planPayload := map[string]interface{}{"plan": steps}
	if sc.Thought != "" {
		planPayload["thought"] = sc.Thought
	}
	if err := emit(task.EventPlan, planPayload); err != nil {
		return "", err
	}
	if sc.Thought != "" {
		if err := emit(task.EventThinking, map[string]interface{}{"content": sc.Thought}); err != nil {
			return "", err
		}
	}

	scripts := make(map[string]StepScript, len(sc.Steps))
	for _, s := range sc.Steps {
		scripts[s.ID] = s
	}
	for _, p := range sc.Plan {
		if err := pace(); err != nil {
			return "", err
		}
		start := map[string]interface{}{"step_id": p.ID, "action": p.Action}
		if p.Tool != "" {
			start["tool_name"] = p.Tool
		}
		if len(p.Params) > 0 {
			start["params"] = p.Params
		}
		if err := emit(task.EventStepStart, start); err != nil {
			return "", err
		}

		script := scripts[p.ID]
		for i, progress := range progressMilestones {
			if err := pace(); err != nil {
				return "", err
			}
			msg := p.Action
			if len(script.Messages) > 0 {
				msg = script.Messages[i*len(script.Messages)/len(progressMilestones)]
			}
			if err := emit(task.EventStepProgress, map[string]interface{}{
				"step_id": p.ID, "progress": progress, "message": msg,
			}); err != nil {
				return "", err
			}
		}

		complete := map[string]interface{}{"step_id": p.ID}
		if script.Result != "" {
			complete["result"] = script.Result
		}
		if script.ThoughtSummary != "" {
			complete["thought_summary"] = script.ThoughtSummary
		}
		if p.Tool != "" {
			complete["tool_name"] = p.Tool
		}
		if err := emit(task.EventStepComplete, complete); err != nil {
			return "", err
		}
	}

	runes := []rune(sc.Answer)
	for i := 0; i < len(runes); i += answerChunkRunes {
		if err := pace(); err != nil {
			return "", err
		}
		end := i + answerChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := emit(task.EventStream, map[string]interface{}{"content": string(runes[i:end])}); err != nil {
			return "", err
		}
	}

	if sc.Cost > 0 {
		if err := emit(task.EventCost, map[string]interface{}{"cost": sc.Cost, "model_mode": "agent"}); err != nil {
			return "", err
		}
	}
	if err := emit(task.EventDone, map[string]interface{}{"content": sc.Answer}); err != nil {
		return "", err
	}
	return sc.Answer, nil
}
