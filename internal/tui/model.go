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

// Package tui scholar 的交互式对话界面。
// 消费侧分两层：turn goroutine 跑 stream.Turn 折叠事件流，
// 回调经 program.Send 转成 tea.Msg；Update 只在 UI goroutine 上
// 改模型状态，View 纯渲染。
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"scholar-agent/internal/client"
	"scholar-agent/internal/runtime/session"
	"scholar-agent/internal/stream"
	"scholar-agent/internal/task"
	"scholar-agent/pkg/log"
)

// entry 本地展示用的一条消息
type entry struct {
	role    string
	content string
	at      time.Time
}

// Options 启动参数
type Options struct {
	Client    *client.Client    // REST 侧：历史加载与 /chat/stop
	Transport *stream.Transport // 流式侧
	SessionID string            // 为空则首轮由服务端建会话
	Mode      string            // agent / normal，空串交给服务端取默认
	Log       *log.Logger
}

// Model bubbletea 模型
type Model struct {
	opts Options
	log  *log.Logger

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
	program  *tea.Program

	sessionID string
	entries   []entry
	streaming string // 当前轮已累计的回答，空串表示没有进行中的流

	turn  *stream.Turn
	state *task.State
	usage *task.Usage

	width  int
	height int
	ready  bool
	err    error
	notice string // 一次性提示（文档刷新等），下一轮开始时清掉
}

// New 创建模型。在 Run 之外单独构造主要是为了测试。
func New(opts Options) Model {
	if opts.Log == nil {
		opts.Log = log.Discard()
	}
	ta := textarea.New()
	ta.Placeholder = "输入问题，Enter 发送"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 8000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	return Model{
		opts:      opts,
		log:       opts.Log,
		viewport:  vp,
		textarea:  ta,
		sessionID: opts.SessionID,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink}
	if m.sessionID != "" && m.opts.Client != nil {
		cmds = append(cmds, m.loadHistory())
	}
	return tea.Batch(cmds...)
}

// loadHistory 恢复会话时拉取历史消息
func (m Model) loadHistory() tea.Cmd {
	c, id := m.opts.Client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msgs, err := c.ListMessages(ctx, id)
		return historyMsg{messages: msgs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		if m.renderer == nil {
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(m.viewport.Width-4),
			)
			if err != nil {
				m.err = fmt.Errorf("init renderer: %w", err)
			} else {
				m.renderer = r
			}
		}
		if !m.ready {
			m.ready = true
			m.refreshViewport()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.cancelTurn()
			return m, tea.Quit
		case tea.KeyEsc:
			// 流进行中按 Esc 停止本轮，否则忽略
			m.cancelTurn()
			return m, nil
		case tea.KeyEnter:
			if msg.Alt {
				var cmd tea.Cmd
				m.textarea, cmd = m.textarea.Update(msg)
				return m, cmd
			}
			return m.submit()
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

	case setProgramMsg:
		m.program = msg.program
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		for _, hm := range msg.messages {
			m.entries = append(m.entries, entry{role: hm.Role, content: hm.Content, at: hm.CreatedAt})
		}
		// 重开会话时用最近一条 assistant 快照预填任务面板
		if st := session.LastTaskSnapshot(msg.messages); st != nil {
			m.state = st
		}
		m.refreshViewport()
		return m, nil

	case sessionMsg:
		m.sessionID = msg.id
		return m, nil

	case stateMsg:
		m.state = msg.snapshot
		return m, nil

	case answerChunkMsg:
		m.streaming = msg.total
		m.refreshViewport()
		return m, nil

	case usageMsg:
		u := msg.usage
		m.usage = &u
		return m, nil

	case docMsg:
		m.notice = fmt.Sprintf("文档已更新: %s", msg.event.DocID)
		return m, nil

	case turnDoneMsg:
		return m.finishTurn(msg.result)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// layout 依据终端尺寸分配各区高度。任务面板高度不固定，
// 这里只保证 viewport 在无面板时占满剩余空间，面板出现时 View 再压缩。
func (m *Model) layout() {
	headerHeight := 1
	footerHeight := 1
	textareaHeight := 4
	m.viewport.Width = m.width - 2
	m.viewport.Height = m.height - headerHeight - textareaHeight - footerHeight - m.panelHeight()
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.textarea.SetWidth(m.width - 2)
}

func (m *Model) panelHeight() int {
	panel := renderTaskPanel(m.state, m.usage, m.width)
	if panel == "" {
		return 0
	}
	return lipgloss.Height(panel)
}

// submit 发送一条消息并启动新一轮
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.turnActive() {
		return m, nil
	}
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return m, nil
	}
	m.entries = append(m.entries, entry{role: session.RoleUser, content: text, at: time.Now()})
	m.textarea.Reset()
	m.state = nil
	m.usage = nil
	m.notice = ""
	m.err = nil
	m.streaming = ""
	m.refreshViewport()
	return m, m.startTurn(text)
}

func (m *Model) turnActive() bool {
	return m.turn != nil && m.turn.Phase() == stream.PhaseStreaming
}

// startTurn 新建一个 Turn 并在后台跑完整轮。
// Hooks 在 turn goroutine 上触发，经 program.Send 回投 UI。
func (m *Model) startTurn(message string) tea.Cmd {
	p := m.program
	send := func(msg tea.Msg) {
		if p != nil {
			p.Send(msg)
		}
	}
	tn := stream.NewTurn(m.opts.Transport, stream.Hooks{
		OnSession: func(id string) { send(sessionMsg{id: id}) },
		OnState:   func(snapshot *task.State) { send(stateMsg{snapshot: snapshot}) },
		OnAnswer:  func(fragment, total string) { send(answerChunkMsg{fragment: fragment, total: total}) },
		OnUsage:   func(u task.Usage) { send(usageMsg{usage: u}) },
		OnDoc:     func(e task.DocEvent) { send(docMsg{event: e}) },
	}, m.log)
	m.turn = tn
	req := stream.StartRequest{SessionID: m.sessionID, Message: message, Mode: m.opts.Mode}
	return func() tea.Msg {
		return turnDoneMsg{result: tn.Run(context.Background(), req)}
	}
}

// cancelTurn 取消进行中的一轮：本地掐断流，再异步通知服务端停跑
func (m *Model) cancelTurn() {
	if !m.turnActive() {
		return
	}
	m.turn.Cancel()
	if m.opts.Client != nil && m.sessionID != "" {
		c, id := m.opts.Client, m.sessionID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.StopChat(ctx, id); err != nil {
				m.log.Warn("stop chat", "session_id", id, "err", err)
			}
		}()
	}
}

// finishTurn 终态处理：把累计回答定格为一条助手消息
func (m Model) finishTurn(res stream.Result) (tea.Model, tea.Cmd) {
	m.turn = nil
	m.streaming = ""
	if res.SessionID != "" {
		m.sessionID = res.SessionID
	}
	if res.State != nil {
		m.state = res.State
		m.usage = res.State.Usage
	}
	switch res.Phase {
	case stream.PhaseErrored:
		m.err = res.Err
		if res.Answer != "" {
			m.entries = append(m.entries, entry{role: session.RoleAssistant, content: res.Answer, at: time.Now()})
		}
	default:
		if res.Answer != "" {
			m.entries = append(m.entries, entry{role: session.RoleAssistant, content: res.Answer, at: time.Now()})
		}
	}
	m.refreshViewport()
	return m, nil
}

// refreshViewport 重渲染全部消息并滚到底部
func (m *Model) refreshViewport() {
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderEntry(e))
	}
	if m.streaming != "" {
		if len(m.entries) > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderEntry(entry{role: session.RoleAssistant, content: m.streaming, at: time.Now()}))
		b.WriteString(" ▊")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// renderEntry 渲染单条消息，助手侧走 Markdown
func (m *Model) renderEntry(e entry) string {
	var b strings.Builder
	prefix, style := "你", userStyle
	if e.role == session.RoleAssistant {
		prefix, style = "Scholar", assistantStyle
	}
	b.WriteString(style.Render(fmt.Sprintf("%s [%s]", prefix, e.at.Format("15:04:05"))))
	b.WriteString("\n")
	content := e.content
	if e.role == session.RoleAssistant && m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			content = strings.TrimSpace(rendered)
		}
	}
	b.WriteString(contentStyle.Render(content))
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "加载中..."
	}
	header := headerStyle.Width(m.width).Render(m.headerLine())

	parts := []string{header, m.viewport.View()}
	if panel := renderTaskPanel(m.state, m.usage, m.width); panel != "" {
		parts = append(parts, panel)
	}
	parts = append(parts, m.textarea.View(), m.footerLine())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerLine() string {
	status := "就绪"
	if m.turnActive() {
		status = "回答中..."
	}
	sess := m.sessionID
	if sess == "" {
		sess = "新会话"
	} else if len(sess) > 8 {
		sess = sess[:8]
	}
	return fmt.Sprintf("Scholar · %s · %s", sess, status)
}

func (m Model) footerLine() string {
	parts := []string{
		keyStyle.Render("Enter"), mutedStyle.Render(" 发送  "),
		keyStyle.Render("Esc"), mutedStyle.Render(" 停止  "),
		keyStyle.Render("↑↓"), mutedStyle.Render(" 滚动  "),
		keyStyle.Render("Ctrl+C"), mutedStyle.Render(" 退出"),
	}
	if m.notice != "" {
		parts = append(parts, mutedStyle.Render("  │ "+m.notice))
	}
	if m.err != nil {
		parts = append(parts, errStyle.Render(fmt.Sprintf("  │ %v", m.err)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

// Run 启动交互式对话界面，阻塞直至用户退出
func Run(opts Options) error {
	model := New(opts)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	go p.Send(setProgramMsg{program: p})
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
