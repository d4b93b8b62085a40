package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := NewTracker()

	assert.False(t, tr.Streaming())
	assert.False(t, tr.StreamingConversation("c1"))

	tr.Begin("c1")
	assert.True(t, tr.Streaming())
	assert.True(t, tr.StreamingConversation("c1"))
	assert.False(t, tr.StreamingConversation("c2"))

	tr.Begin("c2")
	tr.End("c1")
	assert.True(t, tr.Streaming())
	assert.False(t, tr.StreamingConversation("c1"))
	assert.True(t, tr.StreamingConversation("c2"))

	tr.End("c2")
	assert.False(t, tr.Streaming())
}

func TestTracker_UnbalancedEnd(t *testing.T) {
	tr := NewTracker()

	tr.End("c1") // never began; must not underflow
	assert.False(t, tr.Streaming())

	tr.Begin("c1")
	tr.Begin("c1")
	tr.End("c1")
	assert.True(t, tr.StreamingConversation("c1"))
	tr.End("c1")
	assert.False(t, tr.StreamingConversation("c1"))
}

func TestTracker_EmptyIDIgnored(t *testing.T) {
	tr := NewTracker()
	tr.Begin("")
	assert.False(t, tr.Streaming())
}
