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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	pkgerrors "scholar-agent/pkg/errors"
)

// Scenario 一份 agent 模式的回放剧本：计划、逐步执行记录和最终答案。
// 剧本文件是 YAML，放在网关配置的 scenario 目录下。
type Scenario struct {
	Name    string         `yaml:"name"`
	Match   []string       `yaml:"match,omitempty"`
	Thought string         `yaml:"thought,omitempty"`
	Plan    []ScenarioStep `yaml:"plan"`
	Steps   []StepScript   `yaml:"steps"`
	Answer  string         `yaml:"answer"`
	Cost    float64        `yaml:"cost,omitempty"`
}

// ScenarioStep 计划条目，对应 plan 帧里的一个 step。
type ScenarioStep struct {
	ID     string                 `yaml:"id"`
	Action string                 `yaml:"action"`
	Tool   string                 `yaml:"tool,omitempty"`
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// StepScript 某个计划条目的执行脚本。Messages 为空时用 Action 兜底。
type StepScript struct {
	ID             string   `yaml:"id"`
	Messages       []string `yaml:"messages,omitempty"`
	Result         string   `yaml:"result,omitempty"`
	ThoughtSummary string   `yaml:"thought_summary,omitempty"`
}

// LoadScenario 读取单个剧本文件
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read scenario %s", path)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, pkgerrors.Wrapf(err, "parse scenario %s", path)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(sc.Plan) == 0 {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "scenario %s has no plan", sc.Name)
	}
	return &sc, nil
}

// LoadScenarioDir 读取目录下全部 .yaml/.yml 剧本，按文件名排序。
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read scenario dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	var out []*Scenario
	for _, name := range names {
		sc, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "no scenarios in %s", dir)
	}
	return out, nil
}

// PickScenario 按用户消息挑剧本：命中 Match 关键词的优先，否则回退第一份。
func PickScenario(scenarios []*Scenario, message string) *Scenario {
	if len(scenarios) == 0 {
		return nil
	}
	lower := strings.ToLower(message)
	for _, sc := range scenarios {
		for _, kw := range sc.Match {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return sc
			}
		}
	}
	return scenarios[0]
}
