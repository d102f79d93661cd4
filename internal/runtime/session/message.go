package session

import (
	"time"

	"github.com/google/uuid"

	"scholar-agent/internal/task"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 消息类型
const (
	MsgTypeText     = "text"
	MsgTypeDocument = "document"
)

// Message 会话中的一条消息。assistant 消息可携带该轮的任务快照元数据。
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MsgType   string    `json:"msg_type,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata assistant 消息附带的任务快照。
// 键名沿用既有持久化格式，老库里的消息要能原样读回。
type Metadata struct {
	ToolsUsed    []string             `json:"tools_used,omitempty"`
	TaskPlan     []*task.Step         `json:"task_plan,omitempty"`
	AgentThought string               `json:"agent_thought,omitempty"`
	StepThoughts map[string]string    `json:"step_thoughts,omitempty"`
	Timeline     []task.TimelineEntry `json:"timeline,omitempty"`
	Cancelled    bool                 `json:"cancelled,omitempty"`
}

// NewMessage 创建一条消息，id 与时间自动填充
func NewMessage(sessionID, role, content string) *Message {
	return &Message{
		ID:        "msg-" + uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		MsgType:   MsgTypeText,
		CreatedAt: time.Now(),
	}
}
