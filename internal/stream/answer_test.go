// Copyright 2026 fanjia1024
// Tests for the answer accumulator

package stream

import "testing"

func TestAnswer_ExactConcatenation(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{"three fragments", []string{"a", "b", "c"}, "abc"},
		{"single fragment", []string{"abc"}, "abc"},
		{"uneven grouping", []string{"ab", "c"}, "abc"},
		{"multibyte runes split across fragments", []string{"你", "好，wor", "ld"}, "你好，world"},
		{"whitespace preserved verbatim", []string{"Hello ", "", " world\n"}, "Hello  world\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Answer
			for _, f := range tt.fragments {
				a.Append(f)
			}
			if got := a.String(); got != tt.want {
				t.Errorf("accumulated = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswer_FinalDoneFallback(t *testing.T) {
	tests := []struct {
		name        string
		fragments   []string
		doneContent string
		want        string
	}{
		{"old producer sends full text in done", nil, "完整回答", "完整回答"},
		{"new producer sends empty done", []string{"Hello ", "world"}, "", "Hello world"},
		{"accumulated text wins over done content", []string{"streamed"}, "ignored", "streamed"},
		{"nothing at all", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Answer
			for _, f := range tt.fragments {
				a.Append(f)
			}
			if got := a.Final(tt.doneContent); got != tt.want {
				t.Errorf("Final(%q) = %q, want %q", tt.doneContent, got, tt.want)
			}
		})
	}
}

func TestAnswer_Empty(t *testing.T) {
	var a Answer
	if !a.Empty() {
		t.Error("fresh accumulator should be empty")
	}
	a.Append("x")
	if a.Empty() {
		t.Error("accumulator with text should not be empty")
	}
}
