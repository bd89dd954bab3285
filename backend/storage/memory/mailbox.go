package memory

import (
	"sync"

	"github.com/adwski/walkie-talkie/backend/model"
)

// Mailboxes holds one FIFO queue of undelivered messages per participant.
type Mailboxes struct {
	mx    *sync.Mutex
	boxes map[string][]model.Message
}

func NewMailboxes() *Mailboxes {
	return &Mailboxes{
		mx:    &sync.Mutex{},
		boxes: make(map[string][]model.Message),
	}
}

func (mb *Mailboxes) Ensure(name string) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	if _, ok := mb.boxes[name]; !ok {
		mb.boxes[name] = nil
	}
}

func (mb *Mailboxes) Remove(name string) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	delete(mb.boxes, name)
}

func (mb *Mailboxes) Append(name string, msg model.Message) {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	mb.boxes[name] = append(mb.boxes[name], msg)
}

// Drain returns every queued message oldest-first and empties the mailbox.
// It never returns nil.
func (mb *Mailboxes) Drain(name string) []model.Message {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	queue := mb.boxes[name]
	if len(queue) == 0 {
		return []model.Message{}
	}
	mb.boxes[name] = nil
	return queue
}

func (mb *Mailboxes) Len(name string) int {
	mb.mx.Lock()
	defer mb.mx.Unlock()

	return len(mb.boxes[name])
}
