package service

import (
	"fmt"
	"strings"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/google/uuid"
)

// route builds one message and appends it to the mailbox of every registered
// participant except the sender. A direct recipient must be registered, but
// the message still reaches everybody so the whole party can follow the
// conversation. Callers hold svc.mx.
func (svc *Service) route(from, to, content string) (model.Message, error) {
	target := to
	if to != model.BroadcastMarker {
		target = strings.TrimPrefix(to, model.AddressPrefix)
		if !svc.registry.IsRegistered(target) {
			return model.Message{}, fmt.Errorf("%w: %q", ErrTargetNotFound, target)
		}
	}

	msg := model.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        target,
		Content:   content,
		Timestamp: model.Now(),
	}
	for _, name := range svc.recipients(from) {
		svc.mailboxes.Append(name, msg)
		svc.deliver(name)
	}
	svc.logger.Trace().Any("message", msg).Msg("message routed")
	return msg, nil
}

// deliver hands the mailbox of name to its parked poll, if there is one.
func (svc *Service) deliver(name string) {
	w := svc.dispatcher.Take(name)
	if w == nil {
		return
	}
	w.Resolve(svc.mailboxes.Drain(name))
}
