// Copyright 2026 fanjia1024
// Tests for the turn engine

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholar-agent/internal/task"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
)

func emit(w http.ResponseWriter, typ, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func newTestTransport(t *testing.T, handler http.HandlerFunc) *Transport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTransport(server.URL, log.Discard())
}

func TestTurn_HappyPath(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderSessionID, "sess-123")
		w.Header().Set("Content-Type", "text/event-stream")
		emit(w, "plan", `{"plan":[{"id":"s1","action":"检索文献","tool":"search","status":"pending"},{"id":"s2","action":"撰写总结","status":"pending"}],"timestamp":"2026-02-01T10:00:00Z"}`)
		emit(w, "step_start", `{"step_id":"s1","tool_name":"search","timestamp":"2026-02-01T10:00:01Z"}`)
		emit(w, "step_complete", `{"step_id":"s1","result":"找到 3 篇相关论文","timestamp":"2026-02-01T10:00:02Z"}`)
		emit(w, "step_start", `{"step_id":"s2"}`)
		emit(w, "stream", `{"content":"Hello "}`)
		emit(w, "stream", `{"content":"world"}`)
		emit(w, "step_complete", `{"step_id":"s2"}`)
		emit(w, "done", `{}`)
	})

	var (
		sessionID  string
		answers    []string
		stateCalls int
		finals     []Result
	)
	turn := NewTurn(tr, Hooks{
		OnSession: func(id string) { sessionID = id },
		OnAnswer:  func(_, total string) { answers = append(answers, total) },
		OnState:   func(*task.State) { stateCalls++ },
		OnFinal:   func(res Result) { finals = append(finals, res) },
	}, log.Discard())

	res := turn.Run(context.Background(), StartRequest{Message: "帮我查一下", Mode: "agent"})

	require.Equal(t, PhaseCompleted, res.Phase)
	require.NoError(t, res.Err)
	assert.Equal(t, "Hello world", res.Answer)
	assert.Equal(t, "sess-123", res.SessionID)
	assert.Equal(t, "sess-123", sessionID)
	assert.Equal(t, []string{"Hello ", "Hello world"}, answers)
	assert.Equal(t, 5, stateCalls, "plan + 2 starts + 2 completes")

	require.Len(t, res.State.Steps, 2)
	for _, st := range res.State.Steps {
		assert.Equal(t, task.StepDone, st.Status, "step %s", st.ID)
	}
	require.Len(t, res.State.Timeline, 4)
	wantKinds := []task.TimelineKind{task.TimelineStepStart, task.TimelineStepDone, task.TimelineStepStart, task.TimelineStepDone}
	for i, k := range wantKinds {
		assert.Equal(t, k, res.State.Timeline[i].Type, "timeline[%d]", i)
	}

	require.Len(t, finals, 1, "finalization must fire exactly once")
	assert.Equal(t, res, finals[0])
	assert.Equal(t, PhaseCompleted, turn.Phase())
}

func TestTurn_CancelPreservesPartialState(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderSessionID, "sess-c")
		emit(w, "plan", `{"plan":[{"id":"s1","action":"分析文档","status":"pending"}]}`)
		emit(w, "step_start", `{"step_id":"s1"}`)
		emit(w, "stream", `{"content":"分析进行中"}`)
		emit(w, "step_progress", `{"step_id":"s1","progress":0.4,"message":"解析第 2 章"}`)
		// 挂住直到客户端取消
		<-r.Context().Done()
	})

	var finals int
	var turn *Turn
	turn = NewTurn(tr, Hooks{
		OnState: func(s *task.State) {
			if st := s.Step("s1"); st != nil && st.Progress == 0.4 {
				turn.Cancel()
			}
		},
		OnFinal: func(Result) { finals++ },
	}, log.Discard())

	res := turn.Run(context.Background(), StartRequest{SessionID: "sess-c", Message: "分析一下"})

	require.Equal(t, PhaseCancelled, res.Phase)
	assert.NoError(t, res.Err, "cancellation is a first-class outcome, not an error")
	assert.Equal(t, "分析进行中"+CancelledSuffix, res.Answer)

	st := res.State.Step("s1")
	require.NotNil(t, st)
	assert.Equal(t, task.StepRunning, st.Status)
	assert.Equal(t, 0.4, st.Progress)
	assert.Equal(t, "解析第 2 章", st.Message)

	assert.Equal(t, 1, finals)
	assert.Equal(t, PhaseCancelled, turn.Phase())
}

func TestTurn_CancelWithoutAnswerStillMarked(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "step_start", `{"step_id":"s1","action":"检索"}`)
		<-r.Context().Done()
	})

	var turn *Turn
	turn = NewTurn(tr, Hooks{
		OnState: func(*task.State) { turn.Cancel() },
	}, nil)

	res := turn.Run(context.Background(), StartRequest{Message: "hi"})
	require.Equal(t, PhaseCancelled, res.Phase)
	// 有步骤痕迹就要留下中止记录，哪怕一个字都没流出来
	assert.Equal(t, CancelledSuffix, res.Answer)
	assert.True(t, res.State.NonTrivial())
}

func TestTurn_QuotaErrorNoMutation(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":"free_quota_exceeded","message":"今日免费额度已用完"}`)
	})

	var stateCalls, answerCalls, finals int
	turn := NewTurn(tr, Hooks{
		OnState:  func(*task.State) { stateCalls++ },
		OnAnswer: func(string, string) { answerCalls++ },
		OnFinal:  func(Result) { finals++ },
	}, log.Discard())

	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseErrored, res.Phase)
	assert.True(t, errors.Is(res.Err, pkgerrors.ErrFreeQuotaExceeded))
	assert.Empty(t, res.Answer)
	assert.False(t, res.State.NonTrivial(), "no frame callbacks, no state mutation")
	assert.Zero(t, stateCalls)
	assert.Zero(t, answerCalls)
	assert.Equal(t, 1, finals)
}

func TestTurn_ErrorFramePreservesState(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "step_start", `{"step_id":"s1","action":"调用模型"}`)
		emit(w, "stream", `{"content":"部分回答"}`)
		emit(w, "error", `{"message":"模型调用超时"}`)
	})

	turn := NewTurn(tr, Hooks{}, log.Discard())
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseErrored, res.Phase)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "模型调用超时")
	// 报错前折叠的状态保留，供诊断与展示
	assert.Equal(t, "部分回答", res.Answer)
	st := res.State.Step("s1")
	require.NotNil(t, st)
	assert.Equal(t, task.StepRunning, st.Status)
}

func TestTurn_MidStreamDisconnect(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "stream", `{"content":"写到一半"}`)
		panic(http.ErrAbortHandler)
	})

	var finals int
	turn := NewTurn(tr, Hooks{OnFinal: func(Result) { finals++ }}, log.Discard())
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseErrored, res.Phase)
	require.Error(t, res.Err)
	// 网络断了也必须终结一次，部分回答不能悄悄丢失
	assert.Equal(t, "写到一半", res.Answer)
	assert.Equal(t, 1, finals)
}

func TestTurn_DoneContentFallback(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "done", `{"content":"完整回答在 done 里"}`)
	})

	turn := NewTurn(tr, Hooks{}, nil)
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, "完整回答在 done 里", res.Answer)
}

func TestTurn_EOFWithoutDone(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "stream", `{"content":"answer"}`)
	})

	turn := NewTurn(tr, Hooks{}, nil)
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, "answer", res.Answer)
}

func TestTurn_RunTwice(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "done", `{}`)
	})

	turn := NewTurn(tr, Hooks{}, nil)
	first := turn.Run(context.Background(), StartRequest{Message: "hi"})
	require.Equal(t, PhaseCompleted, first.Phase)

	second := turn.Run(context.Background(), StartRequest{Message: "again"})
	assert.Equal(t, PhaseErrored, second.Phase)
	assert.True(t, errors.Is(second.Err, pkgerrors.ErrTurnActive))
}

func TestTurn_MalformedFrameSkipped(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "step_start", `{"step_id":"s1"}`)
		// 载荷结构不对：plan 字段应是数组
		emit(w, "plan", `{"plan":"not-an-array"}`)
		emit(w, "stream", `{"content":"还在流"}`)
		emit(w, "done", `{}`)
	})

	turn := NewTurn(tr, Hooks{}, log.Discard())
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseCompleted, res.Phase)
	assert.Equal(t, "还在流", res.Answer, "one bad frame must not abort the run")
	require.NotNil(t, res.State.Step("s1"))
}

func TestTurn_IgnoresEchoFrames(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "user_message", `{"content":"回显"}`)
		emit(w, "assistant_message", `{"content":"历史"}`)
		emit(w, "agent_continuing", `{}`)
		emit(w, "done", `{}`)
	})

	var stateCalls int
	turn := NewTurn(tr, Hooks{OnState: func(*task.State) { stateCalls++ }}, nil)
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	assert.Equal(t, PhaseCompleted, res.Phase)
	assert.Zero(t, stateCalls)
	assert.Empty(t, res.Answer)
}

func TestTurn_CostAndDocHooks(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		emit(w, "cost", `{"cost":0.01,"balance":4.99,"model_mode":"paid"}`)
		emit(w, "doc_updated", `{"doc_id":"doc-7","action":"updated"}`)
		emit(w, "done", `{}`)
	})

	var usage *task.Usage
	var doc *task.DocEvent
	turn := NewTurn(tr, Hooks{
		OnUsage: func(u task.Usage) { usage = &u },
		OnDoc:   func(ev task.DocEvent) { doc = &ev },
	}, nil)
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})

	require.Equal(t, PhaseCompleted, res.Phase)
	require.NotNil(t, usage)
	assert.Equal(t, 0.01, usage.Cost)
	assert.Equal(t, 4.99, usage.Balance)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-7", doc.DocID)
}

func TestTurn_AnswerNeverShrinks(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		for _, c := range []string{"a", "b", "c", "d"} {
			emit(w, "stream", fmt.Sprintf(`{"content":%q}`, c))
		}
		emit(w, "done", `{}`)
	})

	var prev string
	turn := NewTurn(tr, Hooks{
		OnAnswer: func(_, total string) {
			if !strings.HasPrefix(total, prev) {
				panic("answer shrank")
			}
			prev = total
		},
	}, nil)
	res := turn.Run(context.Background(), StartRequest{Message: "hi"})
	assert.Equal(t, "abcd", res.Answer)
}
