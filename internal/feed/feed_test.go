package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSnapshot struct{}

func (fakeSnapshot) Snapshot() (any, any) {
	return []string{"AGENT_A"}, []string{"task-1"}
}

func TestSubscribeSendsInitEvent(t *testing.T) {
	f := New(fakeSnapshot{})
	out, unsub := f.Subscribe()
	defer unsub()

	select {
	case body := <-out:
		var ev Event
		require.NoError(t, json.Unmarshal(body, &ev))
		require.Equal(t, "init", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for init event")
	}
}

func TestBroadcastDeliversToSubscriber(t *testing.T) {
	f := New(nil)
	out, unsub := f.Subscribe()
	defer unsub()
	<-out // drain init

	f.Broadcast("task_complete", map[string]any{"id": "abc"})

	select {
	case body := <-out:
		var ev Event
		require.NoError(t, json.Unmarshal(body, &ev))
		require.Equal(t, "task_complete", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	f := New(nil)
	_, unsub := f.Subscribe()
	require.Equal(t, 1, f.Count())
	unsub()
	require.Equal(t, 0, f.Count())
}

func TestBroadcastDropsSlowSubscriberInsteadOfBlocking(t *testing.T) {
	f := New(nil)
	out, unsub := f.Subscribe()
	defer unsub()
	<-out // drain init

	for i := 0; i < subscriberBufferSize+10; i++ {
		f.Broadcast("heartbeat", nil)
	}
	require.Equal(t, 0, f.Count())
}

func TestHandleControlMessagePing(t *testing.T) {
	var sent []byte
	HandleControlMessage("ping", func(b []byte) { sent = b })
	require.Contains(t, string(sent), "pong")
}

func TestHandleControlMessageIgnoresOther(t *testing.T) {
	called := false
	HandleControlMessage("whatever", func(b []byte) { called = true })
	require.False(t, called)
}
