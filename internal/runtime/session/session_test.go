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

package session

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	s := New("sid1", "u1")
	if s == nil || s.ID != "sid1" || s.UserID != "u1" {
		t.Errorf("New: %+v", s)
	}
	s2 := New("", "u1")
	if s2.ID == "" {
		t.Error("empty id should generate id")
	}
	if !strings.HasPrefix(s2.ID, "session-") {
		t.Errorf("generated id = %q", s2.ID)
	}
}

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short stays as-is", "帮我找论文", "帮我找论文"},
		{"exactly at limit", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"over limit truncated with ellipsis", strings.Repeat("b", 60), strings.Repeat("b", 50) + "..."},
		{
			// 截断按字符数，多字节中文不能被拦腰砍断
			"cjk over limit",
			strings.Repeat("研", 55),
			strings.Repeat("研", 50) + "...",
		},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromContent(tt.content); got != tt.want {
				t.Errorf("TitleFromContent() = %q, want %q", got, tt.want)
			}
		})
	}
}
