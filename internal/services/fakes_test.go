package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/llm"
	"github.com/yungbote/journey-tutor-backend/internal/realtime"
)

// scriptedModel answers rating prompts from a queue and everything else with a fixed reply.
type scriptedModel struct {
	mu      sync.Mutex
	ratings []string
	reply   string
	fail    bool
	block   bool
	calls   []llm.Request
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Complete(ctx context.Context, req llm.Request) (llm.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fail, block := m.fail, m.block
	var text string
	if IsRatingPrompt(req.Prompt) {
		text = "3"
		if len(m.ratings) > 0 {
			text = m.ratings[0]
			m.ratings = m.ratings[1:]
		}
	} else {
		text = m.reply
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return llm.Result{}, ctx.Err()
	}
	if fail {
		return llm.Result{}, errors.New("upstream unavailable")
	}
	return llm.Result{Text: text, Model: "scripted-1", InputTokens: 11, OutputTokens: 7, UsageReported: true}, nil
}

func (m *scriptedModel) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.calls...)
}

// recordingEmitter keeps every event as decoded JSON. goneAfter > 0 makes later emits fail.
type recordingEmitter struct {
	events    []map[string]any
	goneAfter int
}

func (e *recordingEmitter) Emit(ev any) error {
	if e.goneAfter > 0 && len(e.events) >= e.goneAfter {
		return realtime.ErrClientGone
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	e.events = append(e.events, m)
	return nil
}

func (e *recordingEmitter) EmitText(text string) error {
	for i, part := range realtime.SplitRunes(text, 16) {
		if err := e.Emit(realtime.ChunkEvent{Type: realtime.EventChunk, Text: part, Index: i}); err != nil {
			return err
		}
	}
	return nil
}

func (e *recordingEmitter) Types() []string {
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		t, _ := ev["type"].(string)
		if len(out) > 0 && t == string(realtime.EventChunk) && out[len(out)-1] == t {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (e *recordingEmitter) Find(t realtime.EventType) map[string]any {
	for _, ev := range e.events {
		if ev["type"] == string(t) {
			return ev
		}
	}
	return nil
}

func (e *recordingEmitter) Count(t realtime.EventType) int {
	n := 0
	for _, ev := range e.events {
		if ev["type"] == string(t) {
			n++
		}
	}
	return n
}

func (e *recordingEmitter) Text() string {
	s := ""
	for _, ev := range e.events {
		if ev["type"] == string(realtime.EventChunk) {
			s += ev["text"].(string)
		}
	}
	return s
}

// memoryPromptLogRepo stores rows in memory. failures > 0 fails that many writes first.
type memoryPromptLogRepo struct {
	mu       sync.Mutex
	rows     []*types.JourneyPromptLog
	failures int
}

func (r *memoryPromptLogRepo) Backend() string { return "memory" }

func (r *memoryPromptLogRepo) Create(_ context.Context, row *types.JourneyPromptLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("log store down")
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *memoryPromptLogRepo) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]*types.JourneyPromptLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.JourneyPromptLog
	for _, row := range r.rows {
		if row.AttemptID == attemptID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryPromptLogRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
