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
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"scholar-agent/internal/task"
	"scholar-agent/pkg/config"
	pkgerrors "scholar-agent/pkg/errors"
	"scholar-agent/pkg/log"
	"scholar-agent/pkg/secrets"
)

const relaySystemPrompt = "你是一名学术研究助手，回答要准确、有条理，引用资料时注明来源。"

// ChatStreamer 流式对话模型。openai ChatModel 实现它；测试里用假流替代。
type ChatStreamer interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// Relay normal 模式：把用户消息直连 OpenAI 兼容端点，增量内容转成 stream 帧。
// ChatModel 按配置的默认 provider.model 懒创建，API Key 缺省时从 secrets 取。
type Relay struct {
	cfg     config.ModelConfig
	secrets secrets.Store
	log     *log.Logger

	mu sync.Mutex
	cm ChatStreamer
}

// NewRelay 创建模型直连器
func NewRelay(cfg config.ModelConfig, sec secrets.Store, lg *log.Logger) *Relay {
	if lg == nil {
		lg = log.Discard()
	}
	return &Relay{cfg: cfg, secrets: sec, log: lg}
}

// SetChatModel 注入已建好的模型（测试用）
func (r *Relay) SetChatModel(cm ChatStreamer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cm = cm
}

func (r *Relay) chatModel(ctx context.Context) (ChatStreamer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cm != nil {
		return r.cm, nil
	}

	parts := strings.SplitN(r.cfg.Defaults.LLM, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "model.defaults.llm 应为 provider.model_key，当前: %q", r.cfg.Defaults.LLM)
	}
	provider, modelKey := parts[0], parts[1]
	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "LLM provider %q not configured", provider)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "LLM model %q not configured in provider %q", modelKey, provider)
	}
	apiKey := pc.APIKey
	if apiKey == "" && r.secrets != nil {
		v, err := r.secrets.Get(ctx, strings.ToUpper(provider)+"_API_KEY")
		if err == nil {
			apiKey = v
		}
	}
	if apiKey == "" {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "LLM provider %q api_key not configured", provider)
	}

	cfg := &openai.ChatModelConfig{
		Model:  mi.Name,
		APIKey: apiKey,
	}
	if pc.BaseURL != "" {
		cfg.BaseURL = pc.BaseURL
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "创建 OpenAI ChatModel failed")
	}
	r.log.Info("ChatModel 就绪", "provider", provider, "model", mi.Name)
	r.cm = cm
	return cm, nil
}

// Run 发起一次直连对话并把增量写成帧，返回完整答案。
// history 是本会话此前的 user/assistant 消息，按时间序。
func (r *Relay) Run(ctx context.Context, history []*schema.Message, message string, emit EmitFunc) (string, error) {
	cm, err := r.chatModel(ctx)
	if err != nil {
		return "", err
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(relaySystemPrompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, schema.UserMessage(message))

	sr, err := cm.Stream(ctx, msgs)
	if err != nil {
		return "", pkgerrors.Wrap(err, "model stream")
	}
	defer sr.Close()

	var answer strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return answer.String(), pkgerrors.Wrap(err, "model recv")
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		answer.WriteString(chunk.Content)
		if err := emit(task.EventStream, map[string]interface{}{"content": chunk.Content}); err != nil {
			return answer.String(), err
		}
	}

	if err := emit(task.EventDone, map[string]interface{}{"content": answer.String()}); err != nil {
		return answer.String(), err
	}
	return answer.String(), nil
}
