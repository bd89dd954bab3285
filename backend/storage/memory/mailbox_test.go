package memory

import (
	"testing"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/stretchr/testify/require"
)

func TestMailboxes_Drain_Empty(t *testing.T) {
	req := require.New(t)
	mb := NewMailboxes()
	mb.Ensure("alice")

	for range 3 {
		msgs := mb.Drain("alice")
		req.NotNil(msgs)
		req.Empty(msgs)
	}

	// unknown mailbox behaves the same
	req.Empty(mb.Drain("nobody"))
}

func TestMailboxes_Drain_FIFO(t *testing.T) {
	req := require.New(t)
	mb := NewMailboxes()
	mb.Ensure("bob")

	// Given three queued messages
	for _, id := range []string{"1", "2", "3"} {
		mb.Append("bob", model.Message{ID: id, From: "alice", To: "bob"})
	}
	req.Equal(3, mb.Len("bob"))

	// When the mailbox is drained
	msgs := mb.Drain("bob")

	// Then they come back oldest first and the mailbox is empty
	req.Len(msgs, 3)
	req.Equal("1", msgs[0].ID)
	req.Equal("3", msgs[2].ID)
	req.Zero(mb.Len("bob"))
	req.Empty(mb.Drain("bob"))
}

func TestMailboxes_Remove(t *testing.T) {
	req := require.New(t)
	mb := NewMailboxes()

	mb.Append("bob", model.Message{ID: "1"})
	mb.Remove("bob")
	mb.Remove("bob")

	req.Empty(mb.Drain("bob"))
}
