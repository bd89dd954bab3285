package longpoll

import (
	"testing"
	"time"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newDispatcher(timeout time.Duration) *Dispatcher {
	logger := zerolog.Nop()
	return NewDispatcher(Config{Logger: &logger, Timeout: timeout})
}

func receive(t *testing.T, w *Wait) Result {
	t.Helper()
	select {
	case res := <-w.Done():
		return res
	case <-time.After(time.Second):
		require.FailNow(t, "wait was not resolved")
		return Result{}
	}
}

func requirePending(t *testing.T, w *Wait) {
	t.Helper()
	select {
	case res := <-w.Done():
		require.FailNow(t, "wait resolved unexpectedly", "%+v", res)
	default:
	}
}

func TestDispatcher_Take_And_Resolve(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	w := d.Park("bob")
	req.True(d.Pending("bob"))
	requirePending(t, w)

	taken := d.Take("bob")
	req.Same(w, taken)
	req.False(d.Pending("bob"))
	req.Nil(d.Take("bob"))

	taken.Resolve([]model.Message{{ID: "1"}})
	// second resolution is ignored
	taken.Resolve([]model.Message{{ID: "2"}})

	res := receive(t, w)
	req.False(res.Empty())
	req.Equal("1", res.Messages[0].ID)
	requirePending(t, w)
}

func TestDispatcher_Supersede(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	// Given a parked poll
	first := d.Park("bob")

	// When a second poll arrives
	second := d.Park("bob")

	// Then the first one is resolved with no content
	req.True(receive(t, first).Empty())

	// And only the second one remains
	requirePending(t, second)
	req.Equal(1, d.Len())
	req.Same(second, d.Take("bob"))
}

func TestDispatcher_Timeout(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(20 * time.Millisecond)

	w := d.Park("bob")

	req.True(receive(t, w).Empty())
	req.False(d.Pending("bob"))
}

func TestDispatcher_Timeout_Does_Not_Touch_Newer_Wait(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	old := d.Park("bob")
	newer := d.Park("bob")
	req.True(receive(t, old).Empty())

	// a late timer of the superseded wait fires
	d.expire(old)

	req.True(d.Pending("bob"))
	requirePending(t, newer)
}

func TestDispatcher_Cancel(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	req.False(d.Cancel("bob"))

	w := d.Park("bob")
	req.True(d.Cancel("bob"))
	req.True(receive(t, w).Empty())
	req.Zero(d.Len())
}

func TestDispatcher_Release(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	old := d.Park("bob")
	newer := d.Park("bob")
	req.True(receive(t, old).Empty())

	// releasing a superseded wait keeps the current one
	d.Release(old)
	req.True(d.Pending("bob"))

	d.Release(newer)
	req.False(d.Pending("bob"))
	req.True(receive(t, newer).Empty())
}

func TestDispatcher_Release_After_Take(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	// Given a delivery took the wait but has not resolved it yet
	w := d.Park("bob")
	req.Same(w, d.Take("bob"))

	// When the client goes away in between
	d.Release(w)

	// Then the owner still resolves it with the batch
	w.Resolve([]model.Message{{ID: "1", Content: "hi"}})
	res := receive(t, w)
	req.Len(res.Messages, 1)
	req.Equal("hi", res.Messages[0].Content)
}

func TestDispatcher_CancelAll(t *testing.T) {
	req := require.New(t)
	d := newDispatcher(time.Hour)

	a := d.Park("alice")
	b := d.Park("bob")

	req.Equal(2, d.CancelAll())
	req.True(receive(t, a).Empty())
	req.True(receive(t, b).Empty())
	req.Zero(d.Len())
}
