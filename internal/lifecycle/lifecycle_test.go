package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTrackUntrack(t *testing.T) {
	m := New(nil, nil, nil)
	m.Track("dev1", "com.example")
	m.mu.Lock()
	_, ok := m.tracked["dev1"]["com.example"]
	m.mu.Unlock()
	require.True(t, ok)

	m.Untrack("dev1", "com.example")
	m.mu.Lock()
	_, ok = m.tracked["dev1"]["com.example"]
	m.mu.Unlock()
	require.False(t, ok)
}

func TestNotify_ListenerPanicDoesNotPropagate(t *testing.T) {
	m := New(nil, nil, nil)
	var caught error
	m.onError = func(err error) { caught = err }

	var called bool
	m.notify([]Listener{func(ev Event) {
		called = true
		panic("boom")
	}}, Event{Type: Launch})

	require.True(t, called)
	require.Error(t, caught)
}

func TestNotify_OrderPreserved(t *testing.T) {
	m := New(nil, nil, nil)
	var seen []EventType
	m.notify([]Listener{func(ev Event) { seen = append(seen, ev.Type) }}, Event{Type: Launch})
	m.notify([]Listener{func(ev Event) { seen = append(seen, ev.Type) }}, Event{Type: Terminate})
	require.Equal(t, []EventType{Launch, Terminate}, seen)
}
