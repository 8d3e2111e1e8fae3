package chat

import (
	"context"
	"iter"
	"sync"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/llm"
	"github.com/together-plan/chatplan/internal/sse"
)

type sentEvent struct {
	Name string
	Data any
}

// recordingHandle is an sse.Handle that keeps every delivered event.
type recordingHandle struct {
	mu     sync.Mutex
	events []sentEvent
	closed bool
	done   chan struct{}
	once   sync.Once
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{done: make(chan struct{})}
}

func (h *recordingHandle) Send(event string, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return sse.ErrClosed
	}
	h.events = append(h.events, sentEvent{Name: event, Data: data})
	return nil
}

func (h *recordingHandle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.done)
	})
	return nil
}

func (h *recordingHandle) Done() <-chan struct{} { return h.done }

func (h *recordingHandle) Events() []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sentEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHandle) Names() []string {
	var names []string
	for _, e := range h.Events() {
		names = append(names, e.Name)
	}
	return names
}

// Reset drops everything recorded so far.
func (h *recordingHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

func (h *recordingHandle) Count(name string) int {
	n := 0
	for _, e := range h.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

type fakeStreamer struct {
	mu     sync.Mutex
	chunks []string
	err    error
	calls  [][]llm.Message
}

func (f *fakeStreamer) Stream(_ context.Context, msgs []llm.Message) iter.Seq2[string, error] {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	chunks, err := f.chunks, f.err
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func (f *fakeStreamer) Calls() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llm.Message(nil), f.calls...)
}

// blockingStreamer yields one chunk and then holds the stream open until
// the cycle's context is cancelled.
type blockingStreamer struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingStreamer) Stream(ctx context.Context, _ []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !yield("잠시만요 ", nil) {
			return
		}
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
		yield("", ctx.Err())
	}
}

type fakeLookup struct {
	mu    sync.Mutex
	plans []domain.Plan
	err   error
	calls int
}

func (f *fakeLookup) Lookup(_ context.Context, _ domain.SlotMap) ([]domain.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.plans, f.err
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeTemplates struct {
	mu    sync.Mutex
	saved []domain.Template
}

func (f *fakeTemplates) SaveTemplate(_ context.Context, t *domain.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, *t)
	return nil
}

type published struct {
	Subject string
	Payload any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{Subject: subject, Payload: payload})
	return nil
}

func (f *fakePublisher) Messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

type extractorFunc func(ctx context.Context, utterance string) domain.SlotMap

func (f extractorFunc) Extract(ctx context.Context, utterance string) domain.SlotMap {
	return f(ctx, utterance)
}
