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
	"fmt"
	"strings"

	"scholar-agent/internal/task"
)

// 任务面板：把折叠出的任务状态渲染成计划清单。
// 纯函数，输入是不可变快照，方便单测。

const progressBarWidth = 10

// stepGlyph 步骤状态符号
func stepGlyph(status task.StepStatus) string {
	switch status {
	case task.StepDone:
		return "●"
	case task.StepRunning:
		return "◐"
	default:
		return "○"
	}
}

// progressBar 渲染 [████······] 形式的进度条，p 取值 0..1
func progressBar(p float64) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p*progressBarWidth + 0.5)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("·", progressBarWidth-filled) + "]"
}

// renderStep 渲染单步：符号、动作、工具、进度与最近一条进度消息
func renderStep(step *task.Step) string {
	var b strings.Builder
	glyph := stepGlyph(step.Status)
	line := fmt.Sprintf("%s %s", glyph, step.Action)
	if step.ToolName != "" {
		line += mutedStyle.Render(fmt.Sprintf(" (%s)", step.ToolName))
	}
	switch step.Status {
	case task.StepDone:
		b.WriteString(stepDoneStyle.Render(line))
	case task.StepRunning:
		b.WriteString(stepRunningStyle.Render(line))
		b.WriteString(" ")
		b.WriteString(progressBar(step.Progress))
		b.WriteString(fmt.Sprintf(" %d%%", int(step.Progress*100+0.5)))
	default:
		b.WriteString(stepPendingStyle.Render(line))
	}
	if step.Status == task.StepRunning && step.Message != "" {
		b.WriteString("\n    ")
		b.WriteString(mutedStyle.Render(step.Message))
	}
	return b.String()
}

// renderTaskPanel 渲染完整任务面板。快照无步骤且无思考时返回空串，
// 外层据此决定是否占用纵向空间。
func renderTaskPanel(st *task.State, usage *task.Usage, width int) string {
	if st == nil || (!st.NonTrivial() && st.Thought == "") {
		return ""
	}
	var lines []string
	for _, step := range st.Steps {
		lines = append(lines, renderStep(step))
	}
	if st.Thought != "" {
		lines = append(lines, thoughtStyle.Render("💭 "+st.Thought))
	}
	if usage != nil {
		line := fmt.Sprintf("本轮费用 %.4f", usage.Cost)
		if usage.Balance > 0 {
			line += fmt.Sprintf(" · 余额 %.2f", usage.Balance)
		}
		if usage.ModelMode != "" {
			line += " · " + usage.ModelMode
		}
		lines = append(lines, usageStyle.Render(line))
	}
	style := panelStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(strings.Join(lines, "\n"))
}
