// Copyright 2026 fanjia1024
// Tests for the SSE frame scanner

package stream

import (
	"io"
	"strings"
	"testing"
)

// chunkReader 按固定大小切块下发，模拟传输层任意拆包
type chunkReader struct {
	data []byte
	size int
	off  int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.off >= len(c.data) {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.data)-c.off {
		n = len(c.data) - c.off
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[c.off:c.off+n])
	c.off += n
	return n, nil
}

func collectFrames(t *testing.T, r io.Reader) []Frame {
	t.Helper()
	var frames []Frame
	fs := NewFrameScanner(r)
	for fs.Scan() {
		frames = append(frames, fs.Frame())
	}
	if err := fs.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	return frames
}

const sampleStream = "event: plan\n" +
	"data: {\"plan\":[{\"id\":\"s1\",\"action\":\"检索文献\",\"status\":\"pending\"}],\"timestamp\":\"2026-01-01T00:00:00Z\"}\n" +
	"\n" +
	"event: step_start\n" +
	"data: {\"step_id\":\"s1\",\"tool_name\":\"search\"}\n" +
	"\n" +
	"event: stream\n" +
	"data: {\"content\":\"你好，\"}\n" +
	"\n" +
	"event: stream\n" +
	"data: {\"content\":\"world\"}\n" +
	"\n" +
	"event: done\n" +
	"data: {}\n" +
	"\n"

func TestFrameScanner_ChunkBoundaryIndependence(t *testing.T) {
	want := collectFrames(t, strings.NewReader(sampleStream))
	if len(want) != 5 {
		t.Fatalf("baseline frames = %d, want 5", len(want))
	}

	// 含多字节中文，1 字节切块会把 UTF-8 序列与分隔符都拦腰截断
	for _, size := range []int{1, 2, 3, 5, 7, 16, 64, len(sampleStream)} {
		got := collectFrames(t, &chunkReader{data: []byte(sampleStream), size: size})
		if len(got) != len(want) {
			t.Fatalf("chunk size %d: frames = %d, want %d", size, len(got), len(want))
		}
		for i := range want {
			if got[i].Type != want[i].Type || string(got[i].Data) != string(want[i].Data) {
				t.Errorf("chunk size %d: frame[%d] = %s %s, want %s %s",
					size, i, got[i].Type, got[i].Data, want[i].Type, want[i].Data)
			}
		}
	}
}

func TestFrameScanner_MalformedSkipped(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTypes []string
	}{
		{
			name: "bad json payload dropped, stream continues",
			input: "event: plan\ndata: {broken\n\n" +
				"event: stream\ndata: {\"content\":\"ok\"}\n\n",
			wantTypes: []string{"stream"},
		},
		{
			name:      "block without event line dropped",
			input:     "data: {\"content\":\"orphan\"}\n\nevent: done\ndata: {}\n\n",
			wantTypes: []string{"done"},
		},
		{
			name:      "block without data line dropped",
			input:     "event: thinking\n\nevent: done\ndata: {}\n\n",
			wantTypes: []string{"done"},
		},
		{
			name:      "comment and bookkeeping fields ignored",
			input:     ": keepalive\nid: 42\nretry: 3000\nevent: done\ndata: {}\n\n",
			wantTypes: []string{"done"},
		},
		{
			name:      "consecutive blank lines",
			input:     "\n\n\nevent: done\ndata: {}\n\n\n",
			wantTypes: []string{"done"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := collectFrames(t, strings.NewReader(tt.input))
			if len(frames) != len(tt.wantTypes) {
				t.Fatalf("frames = %d, want %d", len(frames), len(tt.wantTypes))
			}
			for i, typ := range tt.wantTypes {
				if frames[i].Type != typ {
					t.Errorf("frame[%d].Type = %s, want %s", i, frames[i].Type, typ)
				}
			}
		})
	}
}

func TestFrameScanner_TrailingPartialDropped(t *testing.T) {
	// 流尾残块没有终结空行，不能被提前吐出
	input := "event: stream\ndata: {\"content\":\"a\"}\n\nevent: done\ndata: {}"
	frames := collectFrames(t, strings.NewReader(input))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1 (trailing partial must be dropped)", len(frames))
	}
	if frames[0].Type != "stream" {
		t.Errorf("frame[0].Type = %s, want stream", frames[0].Type)
	}
}

func TestFrameScanner_FirstEventAndDataWin(t *testing.T) {
	input := "event: stream\nevent: done\ndata: {\"content\":\"first\"}\ndata: {\"content\":\"second\"}\n\n"
	frames := collectFrames(t, strings.NewReader(input))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Type != "stream" {
		t.Errorf("Type = %s, want first event line to win", frames[0].Type)
	}
	if string(frames[0].Data) != `{"content":"first"}` {
		t.Errorf("Data = %s, want first data line to win", frames[0].Data)
	}
}

func TestFrameScanner_CRLFAndBOM(t *testing.T) {
	input := "\uFEFFevent: stream\r\ndata: {\"content\":\"x\"}\r\n\r\nevent: done\r\ndata: {}\r\n\r\n"
	frames := collectFrames(t, strings.NewReader(input))
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].Type != "stream" || frames[1].Type != "done" {
		t.Errorf("types = %s, %s", frames[0].Type, frames[1].Type)
	}
}

func TestFrameScanner_NoSpaceAfterColon(t *testing.T) {
	// data:{...} 与 data: {...} 等价
	input := "event:stream\ndata:{\"content\":\"tight\"}\n\n"
	frames := collectFrames(t, strings.NewReader(input))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if string(frames[0].Data) != `{"content":"tight"}` {
		t.Errorf("Data = %s", frames[0].Data)
	}
}
