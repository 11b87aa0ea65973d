package web

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/portal/pkg/state"
)

// attach registers a client without a connection so queued messages can be
// inspected.
func attach(h *Hub, buffer int) *client {
	c := &client{hub: h, send: make(chan Message, buffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func drain(c *client) []Message {
	var out []Message
	for {
		select {
		case m := <-c.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func types(msgs []Message) []MessageType {
	out := make([]MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

func TestHubPublish_EmitsOnlyChanges(t *testing.T) {
	h := NewHub()
	c := attach(h, 16)

	h.Publish(state.View{})
	assert.Equal(t, []MessageType{TypeStatus, TypeLoading, TypeState}, types(drain(c)))

	h.Publish(state.View{})
	assert.Empty(t, drain(c), "identical snapshot should not broadcast")

	h.Publish(state.View{Status: "Generating assessment data...", Loading: true})
	msgs := drain(c)
	require.Equal(t, []MessageType{TypeStatus, TypeLoading}, types(msgs))
	var sp StatusPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &sp))
	assert.Equal(t, "Generating assessment data...", sp.Status)

	h.Publish(state.View{Status: "Generating assessment data...", Popup: true, HasData: true, Repos: []string{"r"}})
	assert.Equal(t, []MessageType{TypeLoading, TypeReady, TypeState}, types(drain(c)))

	h.Publish(state.View{Status: "Generating assessment data...", Popup: true, HasData: true, SelectedRepo: "r"})
	assert.Equal(t, []MessageType{TypeState}, types(drain(c)), "popup already raised")
}

func TestHubBroadcast_DropsWhenFull(t *testing.T) {
	h := NewHub()
	c := attach(h, 1)

	h.Broadcast(NewStatusMessage("a"))
	h.Broadcast(NewStatusMessage("b"))
	assert.Len(t, drain(c), 1)
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	c := attach(h, 1)
	h.Close()
	assert.Zero(t, h.Count())
	_, open := <-c.send
	assert.False(t, open)

	// broadcasting after close must not panic
	h.Broadcast(NewStatusMessage("late"))
}
