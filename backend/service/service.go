package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/adwski/walkie-talkie/backend/longpoll"
	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	SystemSender   = "system"
	OperatorSender = "operator"

	KickNotice = "RADIO_KILLED: You have been disconnected by the operator. Stop immediately."
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNameTaken       = model.ErrNameTaken
	ErrTargetNotFound  = errors.New("user is not connected")
	ErrRegister        = errors.New("unable to register")
	ErrNotRegistered   = errors.New("caller is not registered")
)

type (
	Registry interface {
		Register(name string) (model.Participant, error)
		Unregister(name string) bool
		Authenticate(token string) (string, bool)
		IsRegistered(name string) bool
		List() []string
	}

	MailStore interface {
		Ensure(name string)
		Remove(name string)
		Append(name string, msg model.Message)
		Drain(name string) []model.Message
	}

	Dispatcher interface {
		Park(name string) *longpoll.Wait
		Take(name string) *longpoll.Wait
		Cancel(name string) bool
		Release(w *longpoll.Wait)
		CancelAll() int
	}

	Broadcaster interface {
		Broadcast(evt model.Event)
	}

	// Service is the hub state. Every composite mutation of registry, mailboxes
	// and parked polls happens under one lock, and live events are emitted
	// under the same lock so observers see them in mutation order.
	Service struct {
		mx         *sync.Mutex
		registry   Registry
		mailboxes  MailStore
		dispatcher Dispatcher
		sw         Broadcaster
		logger     zerolog.Logger
	}

	Config struct {
		Registry    Registry
		Mailboxes   MailStore
		Dispatcher  Dispatcher
		Broadcaster Broadcaster
		Logger      *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		mx:         &sync.Mutex{},
		registry:   cfg.Registry,
		mailboxes:  cfg.Mailboxes,
		dispatcher: cfg.Dispatcher,
		sw:         cfg.Broadcaster,
		logger:     cfg.Logger.With().Str("component", "hub").Logger(),
	}
}

func (svc *Service) Register(name string) (model.Participant, error) {
	if name == "" {
		return model.Participant{}, fmt.Errorf("%w: missing name", ErrInvalidArgument)
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	p, err := svc.register(name)
	if err != nil {
		return model.Participant{}, err
	}
	svc.logger.Debug().Str("name", name).Msg("participant registered")
	return p, nil
}

func (svc *Service) register(name string) (model.Participant, error) {
	p, err := svc.registry.Register(name)
	switch {
	case errors.Is(err, ErrNameTaken):
		return model.Participant{}, err
	case err != nil:
		return model.Participant{}, errors.Join(ErrRegister, err)
	}
	svc.mailboxes.Ensure(name)
	svc.sw.Broadcast(model.JoinEvent(name))
	return p, nil
}

// Unregister removes the participant holding token and returns its name.
func (svc *Service) Unregister(token string) (string, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	name, err := svc.caller(token)
	if err != nil {
		return "", err
	}
	svc.remove(name)
	svc.logger.Debug().Str("name", name).Msg("participant unregistered")
	return name, nil
}

// remove tears down every piece of state held for name. The leave event is
// emitted only if name was still registered.
func (svc *Service) remove(name string) {
	svc.dispatcher.Cancel(name)
	svc.mailboxes.Remove(name)
	if svc.registry.Unregister(name) {
		svc.sw.Broadcast(model.LeaveEvent(name))
	}
}

// caller resolves token to a registered name. Callers hold svc.mx, so the
// name stays registered until they release it.
func (svc *Service) caller(token string) (string, error) {
	name, ok := svc.registry.Authenticate(token)
	if !ok {
		return "", ErrNotRegistered
	}
	return name, nil
}

func (svc *Service) Authenticate(token string) (string, bool) {
	return svc.registry.Authenticate(token)
}

func (svc *Service) Users() []string {
	return svc.registry.List()
}

// Send routes a message from the participant holding token.
func (svc *Service) Send(token, to, content string) (model.Message, error) {
	if to == "" || content == "" {
		return model.Message{}, fmt.Errorf("%w: missing 'to' or 'content'", ErrInvalidArgument)
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	from, err := svc.caller(token)
	if err != nil {
		return model.Message{}, err
	}
	msg, err := svc.route(from, to, content)
	if err != nil {
		return model.Message{}, err
	}
	svc.sw.Broadcast(model.MessageEvent(msg))
	svc.logger.Debug().
		Str("from", from).
		Str("to", to).
		Str("id", msg.ID).
		Msg("message sent")
	return msg, nil
}

// AdminSend routes a message on behalf of the operator. The sender is
// registered on the fly so that replies can reach it.
func (svc *Service) AdminSend(from, to, content string) (model.Message, error) {
	if to == "" || content == "" {
		return model.Message{}, fmt.Errorf("%w: missing 'to' or 'content'", ErrInvalidArgument)
	}
	if from == "" {
		from = OperatorSender
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	if !svc.registry.IsRegistered(from) {
		if _, err := svc.register(from); err != nil {
			return model.Message{}, err
		}
		svc.logger.Debug().Str("name", from).Msg("operator identity auto-registered")
	}

	msg, err := svc.route(from, to, content)
	if err != nil {
		return model.Message{}, err
	}
	svc.sw.Broadcast(model.MessageEvent(msg))
	svc.logger.Debug().
		Str("from", from).
		Str("to", to).
		Str("id", msg.ID).
		Msg("admin message sent")
	return msg, nil
}

// Poll returns queued messages of the participant holding token right away
// when there are any. Otherwise it parks a wait which the caller must either
// receive from or release. An older wait of the same participant is
// superseded in both cases.
func (svc *Service) Poll(token string) (*longpoll.Wait, []model.Message, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	name, err := svc.caller(token)
	if err != nil {
		return nil, nil, err
	}
	svc.dispatcher.Cancel(name)
	if msgs := svc.mailboxes.Drain(name); len(msgs) > 0 {
		return nil, msgs, nil
	}
	return svc.dispatcher.Park(name), nil, nil
}

// ReleasePoll purges a wait whose client is gone.
func (svc *Service) ReleasePoll(w *longpoll.Wait) {
	svc.dispatcher.Release(w)
}

func (svc *Service) DrainQueue(name string) []model.Message {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	return svc.mailboxes.Drain(name)
}

// Kick forcibly removes a participant. A termination notice is routed first
// so that a parked poll of the participant receives it.
func (svc *Service) Kick(name string) bool {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	return svc.kick(name)
}

// KickAll kicks every participant registered at call time and returns their names.
func (svc *Service) KickAll() []string {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	names := svc.registry.List()
	for _, name := range names {
		svc.kick(name)
	}
	return names
}

func (svc *Service) kick(name string) bool {
	if !svc.registry.IsRegistered(name) {
		return false
	}
	if _, err := svc.route(SystemSender, name, KickNotice); err != nil {
		svc.logger.Debug().Err(err).Str("name", name).Msg("kick notice was not routed")
	}
	svc.remove(name)
	svc.logger.Debug().Str("name", name).Msg("participant kicked")
	return true
}

// Shutdown releases every parked poll with no content.
func (svc *Service) Shutdown() {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	if n := svc.dispatcher.CancelAll(); n > 0 {
		svc.logger.Debug().Int("polls", n).Msg("parked polls released")
	}
}

func (svc *Service) recipients(from string) []string {
	return lo.Without(svc.registry.List(), from)
}
