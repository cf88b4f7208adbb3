package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func decodeFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestTurnStreamWritesFramesAndHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewTurnStream(context.Background(), rec, StreamConfig{ChunkSize: 4})
	if err != nil {
		t.Fatalf("NewTurnStream: %v", err)
	}
	if err := s.Emit(NewConnectionEvent()); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := s.EmitText("héllo wörld"); err != nil {
		t.Fatalf("EmitText: %v", err)
	}
	if err := s.Emit(DoneEvent{Type: EventDone, Action: "next_step"}); err != nil {
		t.Fatalf("Emit done: %v", err)
	}

	for k, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Fatalf("header %s = %q, want %q", k, got, want)
		}
	}
	if !strings.Contains(rec.Body.String(), "\n\n") {
		t.Fatalf("frames must be blank-line terminated")
	}

	frames := decodeFrames(t, rec.Body.String())
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d: %v", len(frames), frames)
	}
	if frames[0]["type"] != "connection" || frames[0]["status"] != "established" {
		t.Fatalf("first frame = %v", frames[0])
	}
	var text strings.Builder
	for i, f := range frames[1:4] {
		if f["type"] != "chunk" || int(f["index"].(float64)) != i {
			t.Fatalf("chunk frame %d = %v", i, f)
		}
		text.WriteString(f["text"].(string))
	}
	if text.String() != "héllo wörld" {
		t.Fatalf("reassembled %q", text.String())
	}
	if frames[4]["type"] != "done" {
		t.Fatalf("last frame = %v", frames[4])
	}
}

func TestTurnStreamStopsWhenClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	s, err := NewTurnStream(ctx, rec, StreamConfig{ChunkSize: 1, ChunkDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTurnStream: %v", err)
	}
	go func() {
		time.Sleep(12 * time.Millisecond)
		cancel()
	}()
	err = s.EmitText(strings.Repeat("x", 500))
	if !errors.Is(err, ErrClientGone) {
		t.Fatalf("EmitText after disconnect: want ErrClientGone, got %v", err)
	}
	if err := s.Emit(ErrorEvent{Type: EventError, Message: "late"}); !errors.Is(err, ErrClientGone) {
		t.Fatalf("Emit after disconnect: want ErrClientGone, got %v", err)
	}
	if n := len(decodeFrames(t, rec.Body.String())); n >= 500 {
		t.Fatalf("expected emission to stop early, got %d frames", n)
	}
}

type plainWriter struct{ h http.Header }

func (p *plainWriter) Header() http.Header         { return p.h }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestTurnStreamRequiresFlusher(t *testing.T) {
	if _, err := NewTurnStream(context.Background(), &plainWriter{h: http.Header{}}, StreamConfig{}); err == nil {
		t.Fatalf("expected error for non-flushing writer")
	}
}

func TestSplitRunes(t *testing.T) {
	cases := []struct {
		name string
		text string
		size int
		want []string
	}{
		{name: "empty", text: "", size: 3, want: nil},
		{name: "exact", text: "abcdef", size: 3, want: []string{"abc", "def"}},
		{name: "remainder", text: "abcde", size: 2, want: []string{"ab", "cd", "e"}},
		{name: "multibyte", text: "ñandú", size: 2, want: []string{"ña", "nd", "ú"}},
		{name: "no size", text: "abc", size: 0, want: []string{"abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitRunes(tc.text, tc.size)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("SplitRunes(%q,%d) = %q, want %q", tc.text, tc.size, got, tc.want)
			}
		})
	}
}
