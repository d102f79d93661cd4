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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scholar-agent/internal/task"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
	"scholar-agent/pkg/metrics"
)

// Phase 一轮对话的生命周期阶段。idle → streaming 后进入且仅进入
// 一个终态：completed、cancelled 或 errored。
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStreaming Phase = "streaming"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseErrored   Phase = "errored"
)

// Result 一轮对话的终态产物。Answer 已定稿（取消时含中止标记），
// State 冻结不再变更。
type Result struct {
	Phase     Phase
	Answer    string
	State     *task.State
	SessionID string
	Err       error
}

// Hooks 消费循环中的回调，全部在该轮的单一 goroutine 上同步调用。
// OnState 收到的是深拷贝快照，回调方可安全跨 goroutine 转发。
// OnFinal 每轮恰好触发一次，无论完成、取消还是出错。
type Hooks struct {
	OnSession func(sessionID string)
	OnState   func(snapshot *task.State)
	OnAnswer  func(fragment, total string)
	OnUsage   func(u task.Usage)
	OnDoc     func(ev task.DocEvent)
	OnFinal   func(res Result)
}

// Turn 驱动一轮对话：打开流、逐帧折叠、终结。一个 Turn 只能 Run 一次；
// 同一会话的下一轮用新的 Turn，任务状态从空开始。
type Turn struct {
	transport *Transport
	hooks     Hooks
	log       *log.Logger
	mode      string

	mu        sync.Mutex
	phase     Phase
	cancel    context.CancelFunc
	cancelled bool

	state  *task.State
	answer *Answer

	finalizeOnce sync.Once
	result       Result
}

// NewTurn 创建一轮对话。lg 可为 nil。
func NewTurn(tr *Transport, hooks Hooks, lg *log.Logger) *Turn {
	if lg == nil {
		lg = log.Discard()
	}
	return &Turn{
		transport: tr,
		hooks:     hooks,
		log:       lg,
		phase:     PhaseIdle,
		state:     task.NewState(),
		answer:    &Answer{},
	}
}

// Phase 当前阶段，可跨 goroutine 读取
func (t *Turn) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Cancel 请求中止正在流式进行的一轮。非 streaming 阶段调用无效果。
// 中止不是错误：已累积的回答与任务状态原样保留并定稿。
func (t *Turn) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseStreaming || t.cancel == nil {
		return
	}
	t.cancelled = true
	t.cancel()
}

func (t *Turn) cancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Run 执行整轮消费循环直至终态，返回与 OnFinal 相同的 Result。
// 阻塞直到流结束，调用方通常放在独立 goroutine 里并通过 Hooks 取增量。
func (t *Turn) Run(ctx context.Context, req StartRequest) Result {
	t.mu.Lock()
	if t.phase != PhaseIdle {
		t.mu.Unlock()
		return Result{Phase: PhaseErrored, State: task.NewState(), Err: pkgerrors.ErrTurnActive}
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.phase = PhaseStreaming
	t.mode = req.Mode
	t.mu.Unlock()
	defer cancel()

	start := time.Now()
	ctx, span := otel.Tracer("scholar-agent/internal/stream").Start(ctx, "chat.turn",
		trace.WithAttributes(
			attribute.String("chat.mode", t.modeLabel()),
			attribute.Bool("chat.new_session", req.SessionID == ""),
		))
	defer span.End()

	metrics.StreamActive.Inc()
	defer metrics.StreamActive.Dec()

	conn, err := t.transport.Open(ctx, req)
	if err != nil {
		// 流未开始，没有任何帧级回调发生过
		if reason := pkgerrors.ReasonOf(err); reason != "" {
			metrics.QuotaRejectedTotal.WithLabelValues(reason).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "open stream failed")
		return t.finalize(PhaseErrored, "", req.SessionID, err, start)
	}
	defer conn.Body.Close()

	sessionID := req.SessionID
	if conn.SessionID != "" {
		sessionID = conn.SessionID
		if t.hooks.OnSession != nil {
			t.hooks.OnSession(conn.SessionID)
		}
	}
	span.SetAttributes(attribute.String("chat.session_id", sessionID))

	var (
		sawDone     bool
		doneContent string
		frameErr    error
	)
	sc := NewFrameScanner(conn.Body)
loop:
	for sc.Scan() {
		frame := sc.Frame()
		metrics.FrameTotal.WithLabelValues(frame.Type).Inc()
		switch frame.Type {
		case task.EventStream:
			var p struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(frame.Data, &p); err != nil {
				t.log.Warn("skip malformed stream frame", "err", err)
				continue
			}
			if p.Content == "" {
				continue
			}
			t.answer.Append(p.Content)
			metrics.AnswerBytes.Add(float64(len(p.Content)))
			if t.hooks.OnAnswer != nil {
				t.hooks.OnAnswer(p.Content, t.answer.String())
			}
		case task.EventDone:
			var p struct {
				Content string `json:"content"`
			}
			_ = json.Unmarshal(frame.Data, &p)
			sawDone = true
			doneContent = p.Content
			break loop
		case task.EventError:
			var p struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(frame.Data, &p)
			if p.Message == "" {
				p.Message = "agent reported an unspecified error"
			}
			frameErr = fmt.Errorf("agent error: %s", p.Message)
			break loop
		case task.EventUserMessage, task.EventAssistantMessage, task.EventAgentContinuing:
			// 回显与续跑提示帧，不进任务状态
		case task.EventPlan, task.EventThinking, task.EventThought,
			task.EventStepStart, task.EventStepProgress, task.EventStepComplete:
			if err := t.state.Apply(frame.Type, frame.Data); err != nil {
				t.log.Warn("skip malformed frame", "type", frame.Type, "err", err)
				continue
			}
			if t.hooks.OnState != nil {
				t.hooks.OnState(t.state.Clone())
			}
		case task.EventCost:
			if err := t.state.Apply(frame.Type, frame.Data); err != nil {
				t.log.Warn("skip malformed cost frame", "err", err)
				continue
			}
			if t.hooks.OnUsage != nil && t.state.Usage != nil {
				t.hooks.OnUsage(*t.state.Usage)
			}
		case task.EventDocUpdated:
			if err := t.state.Apply(frame.Type, frame.Data); err != nil {
				t.log.Warn("skip malformed doc_updated frame", "err", err)
				continue
			}
			if t.hooks.OnDoc != nil {
				if n := len(t.state.DocEvents); n > 0 {
					t.hooks.OnDoc(t.state.DocEvents[n-1])
				}
			}
		default:
			t.log.Debug("ignore unknown frame type", "type", frame.Type)
		}
	}

	phase := PhaseCompleted
	var finalErr error
	switch {
	case frameErr != nil:
		// 服务端明确报错：终态 errored，已折叠的部分状态保留
		phase, finalErr = PhaseErrored, frameErr
	case sawDone:
		phase = PhaseCompleted
	default:
		// 流在 done 之前断了：先区分取消，再算网络故障
		readErr := sc.Err()
		switch {
		case t.cancelRequested(), errors.Is(readErr, context.Canceled), ctx.Err() != nil:
			phase = PhaseCancelled
		case readErr != nil:
			phase = PhaseErrored
			finalErr = pkgerrors.Wrap(readErr, "chat stream interrupted")
		default:
			// 服务端没发 done 就正常收流，按完成处理
			phase = PhaseCompleted
		}
	}

	span.SetAttributes(attribute.String("chat.outcome", string(phase)))
	if finalErr != nil {
		span.RecordError(finalErr)
		span.SetStatus(codes.Error, "turn errored")
	}
	return t.finalize(phase, doneContent, sessionID, finalErr, start)
}

// finalize 定稿并进入终态。sync.Once 保证回调恰好一次；
// 出错与取消路径也必须走到这里，部分状态不能悄悄丢失。
func (t *Turn) finalize(phase Phase, doneContent, sessionID string, err error, start time.Time) Result {
	t.finalizeOnce.Do(func() {
		final := t.answer.Final(doneContent)
		if phase == PhaseCancelled && (final != "" || t.state.NonTrivial()) {
			final += CancelledSuffix
		}
		t.mu.Lock()
		t.phase = phase
		t.mu.Unlock()
		t.result = Result{
			Phase:     phase,
			Answer:    final,
			State:     t.state,
			SessionID: sessionID,
			Err:       err,
		}
		metrics.TurnTotal.WithLabelValues(string(phase)).Inc()
		metrics.TurnDuration.WithLabelValues(t.modeLabel()).Observe(time.Since(start).Seconds())
		t.log.Info("turn finished",
			"phase", string(phase),
			"session_id", sessionID,
			"answer_len", len(final),
			"steps", len(t.state.Steps),
		)
		if t.hooks.OnFinal != nil {
			t.hooks.OnFinal(t.result)
		}
	})
	return t.result
}

func (t *Turn) modeLabel() string {
	if t.mode == "" {
		return "normal"
	}
	return t.mode
}
