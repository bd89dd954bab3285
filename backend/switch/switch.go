package _switch

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultObserverBuffer  = 64
	defaultObserverBacklog = 1 << 16
)

var observerSeq atomic.Uint64

// Observer is a live event subscription. Frames are serialized events.
// Frames that do not fit the channel wait in a backlog, so a burst of events
// does not cost the observer its stream. The channel is closed when the
// observer is unsubscribed, or dropped for exceeding the backlog limit.
type Observer struct {
	ID uint64
	tx chan []byte

	wake chan struct{}
	quit chan struct{}

	mx         *sync.Mutex
	backlog    [][]byte
	maxBacklog int
}

func newObserver(bufSize, maxBacklog int) *Observer {
	o := &Observer{
		ID:         observerSeq.Add(1),
		tx:         make(chan []byte, bufSize),
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		mx:         &sync.Mutex{},
		maxBacklog: maxBacklog,
	}
	go o.pump()
	return o
}

func (o *Observer) Frames() <-chan []byte {
	return o.tx
}

// offer queues frame without blocking. It reports false when the backlog is full.
func (o *Observer) offer(frame []byte) bool {
	o.mx.Lock()
	if len(o.backlog) >= o.maxBacklog {
		o.mx.Unlock()
		return false
	}
	o.backlog = append(o.backlog, frame)
	o.mx.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// pump moves backlog frames into the channel in order until stopped.
func (o *Observer) pump() {
	defer close(o.tx)
	for {
		select {
		case <-o.quit:
			return
		case <-o.wake:
		}

		o.mx.Lock()
		frames := o.backlog
		o.backlog = nil
		o.mx.Unlock()

		for _, frame := range frames {
			select {
			case o.tx <- frame:
			case <-o.quit:
				return
			}
		}
	}
}

// stop is called once, by whoever removes the observer from the switch.
func (o *Observer) stop() {
	close(o.quit)
}

// Switch fans out live events to every open observer connection.
// Broadcast never blocks the emitter.
type Switch struct {
	logger     zerolog.Logger
	mx         *sync.RWMutex
	observers  map[uint64]*Observer
	bufSize    int
	maxBacklog int
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:     logger.With().Str("component", "switch").Logger(),
		mx:         &sync.RWMutex{},
		observers:  make(map[uint64]*Observer),
		bufSize:    defaultObserverBuffer,
		maxBacklog: defaultObserverBacklog,
	}
}

func (sw *Switch) Subscribe() *Observer {
	o := newObserver(sw.bufSize, sw.maxBacklog)

	sw.mx.Lock()
	sw.observers[o.ID] = o
	sw.mx.Unlock()

	sw.logger.Debug().Uint64("observer", o.ID).Msg("observer connected")
	return o
}

func (sw *Switch) Unsubscribe(o *Observer) {
	sw.mx.Lock()
	_, ok := sw.observers[o.ID]
	if ok {
		delete(sw.observers, o.ID)
		o.stop()
	}
	sw.mx.Unlock()

	if ok {
		sw.logger.Debug().Uint64("observer", o.ID).Msg("observer disconnected")
	}
}

// Broadcast serializes evt once and queues it for every observer.
func (sw *Switch) Broadcast(evt model.Event) {
	b, err := json.Marshal(&evt)
	if err != nil {
		sw.logger.Error().Err(err).Str("type", evt.Type).Msg("failed to marshal event")
		return
	}

	sw.mx.Lock()
	defer sw.mx.Unlock()

	for id, o := range sw.observers {
		if !o.offer(b) {
			delete(sw.observers, id)
			o.stop()
			sw.logger.Warn().Uint64("observer", id).Msg("observer backlog is full, dropped")
		}
	}
	sw.logger.Trace().Str("type", evt.Type).Int("observers", len(sw.observers)).Msg("event broadcast")
}

func (sw *Switch) Observers() int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	return len(sw.observers)
}

// Close drops every observer, ending their streams.
func (sw *Switch) Close() {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	for id, o := range sw.observers {
		delete(sw.observers, id)
		o.stop()
	}
}
