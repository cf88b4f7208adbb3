package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrClientGone is returned once the client has disconnected or a write failed.
var ErrClientGone = errors.New("stream client gone")

// Emitter delivers turn events to one client.
type Emitter interface {
	Emit(ev any) error
	// EmitText sends text as a series of chunk events.
	EmitText(text string) error
}

type StreamConfig struct {
	ChunkSize  int
	ChunkDelay time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 24
	}
	if c.ChunkDelay < 0 {
		c.ChunkDelay = 0
	}
	return c
}

// TurnStream writes events as "data: <json>\n\n" and flushes each one.
type TurnStream struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	cfg     StreamConfig

	mu    sync.Mutex
	index int
	gone  bool
}

func NewTurnStream(ctx context.Context, w http.ResponseWriter, cfg StreamConfig) (*TurnStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by %T", w)
	}
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &TurnStream{ctx: ctx, w: w, flusher: flusher, cfg: cfg.withDefaults()}, nil
}

func setStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (s *TurnStream) Emit(ev any) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(raw)
}

func (s *TurnStream) writeLocked(raw []byte) error {
	if s.gone || s.ctx.Err() != nil {
		s.gone = true
		return ErrClientGone
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		s.gone = true
		return ErrClientGone
	}
	s.flusher.Flush()
	return nil
}

func (s *TurnStream) EmitText(text string) error {
	for i, part := range SplitRunes(text, s.cfg.ChunkSize) {
		if i > 0 && s.cfg.ChunkDelay > 0 {
			select {
			case <-s.ctx.Done():
				s.mu.Lock()
				s.gone = true
				s.mu.Unlock()
				return ErrClientGone
			case <-time.After(s.cfg.ChunkDelay):
			}
		}
		s.mu.Lock()
		ev := ChunkEvent{Type: EventChunk, Text: part, Index: s.index}
		s.index++
		raw, err := json.Marshal(ev)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("marshal chunk: %w", err)
		}
		err = s.writeLocked(raw)
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// SplitRunes cuts text into pieces of at most size runes, never splitting a rune.
func SplitRunes(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	out := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, n := 0, 0
	for i := range text {
		if n == size {
			out = append(out, text[start:i])
			start, n = i, 0
		}
		n++
	}
	out = append(out, text[start:])
	return out
}
