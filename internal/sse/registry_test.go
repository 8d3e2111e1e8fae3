package sse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/together-plan/chatplan/internal/domain"
	"github.com/together-plan/chatplan/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type sentEvent struct {
	Event string
	Data  any
}

type fakeHandle struct {
	mu      sync.Mutex
	events  []sentEvent
	sendErr error
	closes  atomic.Int32
	done    chan struct{}
	once    sync.Once
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{})}
}

func (f *fakeHandle) Send(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, sentEvent{Event: event, Data: data})
	return nil
}

func (f *fakeHandle) Close() error {
	f.closes.Add(1)
	f.once.Do(func() { close(f.done) })
	return errors.New("already gone")
}

func (f *fakeHandle) Done() <-chan struct{} { return f.done }

func (f *fakeHandle) failWith(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *fakeHandle) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

func TestOpenSendsConnected(t *testing.T) {
	reg := NewRegistry("chat")
	h := newFakeHandle()

	ctx := reg.Open("u1", h)
	require.NotNil(t, ctx)
	assert.NoError(t, ctx.Err())
	assert.True(t, reg.Has("u1"))
	assert.Equal(t, []string{domain.EventConnected}, h.names())
	assert.Equal(t, 1, reg.Len())
}

func TestOpenReplacesExistingBinding(t *testing.T) {
	var closedIDs []string
	reg := NewRegistry("chat", WithCloseCallback(func(id string) {
		closedIDs = append(closedIDs, id)
	}))

	first := newFakeHandle()
	firstCtx := reg.Open("u1", first)
	second := newFakeHandle()
	secondCtx := reg.Open("u1", second)

	assert.ErrorIs(t, firstCtx.Err(), context.Canceled)
	assert.NoError(t, secondCtx.Err())
	assert.EqualValues(t, 1, first.closes.Load())
	assert.Equal(t, []string{"u1"}, closedIDs)
	assert.Equal(t, 1, reg.Len())

	reg.Push("u1", domain.EventQuestion, "hello")
	assert.Equal(t, []string{domain.EventConnected}, first.names())
	assert.Equal(t, []string{domain.EventConnected, domain.EventQuestion}, second.names())
}

func TestPushWithoutBindingIsDropped(t *testing.T) {
	m := metrics.New()
	reg := NewRegistry("chat", WithMetrics(m))

	reg.Push("nobody", domain.EventQuestion, "hi")

	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP chatplan_events_dropped_total Events dropped because no channel was bound or the transport failed.
# TYPE chatplan_events_dropped_total counter
chatplan_events_dropped_total{channel="chat",reason="unbound"} 1
`), "chatplan_events_dropped_total"))
}

func TestPushFailureTearsDownBinding(t *testing.T) {
	closed := make(chan string, 1)
	reg := NewRegistry("chat", WithCloseCallback(func(id string) { closed <- id }))
	h := newFakeHandle()
	ctx := reg.Open("u1", h)

	h.failWith(errors.New("broken pipe"))
	reg.Push("u1", domain.EventStreamChat, "token")

	assert.False(t, reg.Has("u1"))
	assert.Error(t, ctx.Err())
	assert.Equal(t, "u1", <-closed)

	// Later pushes are silently dropped.
	reg.Push("u1", domain.EventDone, "")
}

func TestPushBoundDropsEventsForReplacedBinding(t *testing.T) {
	reg := NewRegistry("chat")
	old := newFakeHandle()
	oldCtx := reg.Open("u1", old)
	current := newFakeHandle()
	currentCtx := reg.Open("u1", current)

	reg.PushBound(oldCtx, "u1", domain.EventStreamChat, "late token")
	reg.PushBound(currentCtx, "u1", domain.EventStreamChat, "fresh token")

	assert.Equal(t, []string{domain.EventConnected, domain.EventStreamChat}, current.names())
	assert.Equal(t, []string{domain.EventConnected}, old.names())
}

func TestCloseHandleIgnoresStaleHandle(t *testing.T) {
	reg := NewRegistry("chat")
	old := newFakeHandle()
	reg.Open("u1", old)
	current := newFakeHandle()
	reg.Open("u1", current)

	reg.CloseHandle("u1", old)
	assert.True(t, reg.Has("u1"))

	reg.CloseHandle("u1", current)
	assert.False(t, reg.Has("u1"))
}

func TestCloseIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry("chat", WithCloseCallback(func(string) { calls.Add(1) }))
	reg.Open("u1", newFakeHandle())

	reg.Close("u1")
	reg.Close("u1")
	reg.Close("missing")

	assert.EqualValues(t, 1, calls.Load())
}

func TestConcurrentCloseReleasesOnce(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry("chat", WithCloseCallback(func(string) { calls.Add(1) }))
	h := newFakeHandle()
	reg.Open("u1", h)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				reg.Close("u1")
			case 1:
				reg.CloseHandle("u1", h)
			default:
				reg.CloseAll()
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, h.closes.Load())
	assert.Equal(t, 0, reg.Len())
}

func TestConcurrentOpenKeepsSingleBinding(t *testing.T) {
	m := metrics.New()
	reg := NewRegistry("chat", WithMetrics(m))

	var wg sync.WaitGroup
	handles := make([]*fakeHandle, 20)
	for i := range handles {
		handles[i] = newFakeHandle()
		wg.Add(1)
		go func(h *fakeHandle) {
			defer wg.Done()
			reg.Open("u1", h)
		}(handles[i])
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Len())
	open := 0
	for _, h := range handles {
		if h.closes.Load() == 0 {
			open++
		}
	}
	assert.Equal(t, 1, open)
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP chatplan_channels_open Currently bound push channels.
# TYPE chatplan_channels_open gauge
chatplan_channels_open{channel="chat"} 1
`), "chatplan_channels_open"))
}

func TestCloseOlderThan(t *testing.T) {
	reg := NewRegistry("chat")
	reg.Open("old", newFakeHandle())
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	reg.Open("new", newFakeHandle())

	assert.Equal(t, 1, reg.CloseOlderThan(cutoff))
	assert.False(t, reg.Has("old"))
	assert.True(t, reg.Has("new"))

	info, ok := reg.Info("new")
	require.True(t, ok)
	assert.False(t, info.LastActivity.Before(info.CreatedAt))
}

func TestRegistriesAreIndependent(t *testing.T) {
	chat := NewRegistry("chat")
	smishing := NewRegistry("smishing")
	chat.Open("u1", newFakeHandle())

	assert.True(t, chat.Has("u1"))
	assert.False(t, smishing.Has("u1"))
}

func TestReplacementIsBoundDuringTeardownCallback(t *testing.T) {
	var reg *Registry
	var boundDuringClose []bool
	reg = NewRegistry("chat", WithCloseCallback(func(id string) {
		boundDuringClose = append(boundDuringClose, reg.Has(id))
	}))

	reg.Open("u1", newFakeHandle())
	reg.Open("u1", newFakeHandle())
	reg.Close("u1")

	assert.Equal(t, []bool{true, false}, boundDuringClose)
}
