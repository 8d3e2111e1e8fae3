package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/together-plan/chatplan/internal/domain"
)

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	store := NewStore()
	a := store.GetOrCreate("u1")
	b := store.GetOrCreate("u1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get("u2")
	assert.False(t, ok)
}

func TestRemoveThenRecreateStartsEmpty(t *testing.T) {
	store := NewStore()
	s := store.GetOrCreate("u1")
	s.MergeSlots(domain.SlotMap{domain.SlotVoice: "100"})
	s.AppendMessage(domain.SenderUser, "hi")

	store.Remove("u1")
	store.Remove("u1")

	fresh := store.GetOrCreate("u1")
	assert.NotSame(t, s, fresh)
	assert.Empty(t, fresh.Slots())
	assert.Empty(t, fresh.Messages())
	_, ok := fresh.Recommendation()
	assert.False(t, ok)
}

func TestMergeSlotsOverwrites(t *testing.T) {
	s := NewStore().GetOrCreate("u1")
	s.MergeSlots(domain.SlotMap{domain.SlotVoice: "100", domain.SlotData: "2048"})
	merged := s.MergeSlots(domain.SlotMap{domain.SlotVoice: domain.Unlimited})

	assert.Equal(t, domain.SlotMap{domain.SlotVoice: domain.Unlimited, domain.SlotData: "2048"}, merged)

	merged[domain.SlotSMS] = "mutated"
	_, ok := s.Slots()[domain.SlotSMS]
	assert.False(t, ok, "snapshot must not alias session state")
}

func TestMessagesKeepOrder(t *testing.T) {
	s := NewStore().GetOrCreate("u1")
	s.AppendMessage(domain.SenderUser, "first")
	s.AppendMessage(domain.SenderAssistant, "second")

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, domain.SenderAssistant, msgs[1].Sender)
}

func TestRecommendationCache(t *testing.T) {
	s := NewStore().GetOrCreate("u1")
	s.SetRecommendation(domain.Recommendation{PlanName: "A", Price: 10000})
	s.SetRecommendation(domain.Recommendation{PlanName: "B", Price: 9000})

	rec, ok := s.Recommendation()
	require.True(t, ok)
	assert.Equal(t, "B", rec.PlanName)
}

func TestTurnsRunInReservationOrder(t *testing.T) {
	s := NewStore().GetOrCreate("u1")
	first := s.NextTurn()
	second := s.NextTurn()
	third := s.NextTurn()

	select {
	case <-first.Ready():
	default:
		t.Fatal("first turn should be ready immediately")
	}
	select {
	case <-second.Ready():
		t.Fatal("second turn must wait for the first")
	default:
	}

	// Releasing a later turn early does not unblock anything.
	third.Done()
	second.Done()
	select {
	case <-third.Ready():
		t.Fatal("third turn must wait for the first")
	case <-time.After(10 * time.Millisecond):
	}

	first.Done()
	first.Done()
	select {
	case <-third.Ready():
	case <-time.After(time.Second):
		t.Fatal("turns were not released in order")
	}

	fourth := s.NextTurn()
	require.Eventually(t, func() bool {
		select {
		case <-fourth.Ready():
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	fourth.Done()
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := store.GetOrCreate("shared")
			s.AppendMessage(domain.SenderUser, "x")
			s.MergeSlots(domain.SlotMap{domain.SlotAge: "20"})
			_ = s.Slots()
		}()
	}
	wg.Wait()
	assert.Len(t, store.GetOrCreate("shared").Messages(), 50)
}
