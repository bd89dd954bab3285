// Package longpoll parks at most one outstanding poll per participant and
// resolves it on delivery, timeout, supersession or teardown.
package longpoll

import (
	"sync"
	"time"

	"github.com/adwski/walkie-talkie/backend/model"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = time.Hour
)

// Result resolves a Wait. Empty Messages is the no-content signal.
type Result struct {
	Messages []model.Message
}

func (r Result) Empty() bool {
	return len(r.Messages) == 0
}

// Wait is a parked poll. It is resolved exactly once.
type Wait struct {
	name  string
	done  chan Result
	timer *time.Timer
	once  sync.Once
}

func (w *Wait) Done() <-chan Result {
	return w.done
}

func (w *Wait) resolve(res Result) {
	w.once.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.done <- res
	})
}

// Resolve completes the wait with messages. It has no effect if the wait
// was already resolved. Only the owner obtained from Take may call it.
func (w *Wait) Resolve(messages []model.Message) {
	w.resolve(Result{Messages: messages})
}

type Config struct {
	Logger  *zerolog.Logger
	Timeout time.Duration
}

type Dispatcher struct {
	logger  zerolog.Logger
	timeout time.Duration
	mx      *sync.Mutex
	waits   map[string]*Wait
}

func NewDispatcher(cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		logger:  cfg.Logger.With().Str("component", "longpoll").Logger(),
		timeout: timeout,
		mx:      &sync.Mutex{},
		waits:   make(map[string]*Wait),
	}
}

// Park installs a new wait for name. A wait already parked for name is
// superseded and resolved with no content.
func (d *Dispatcher) Park(name string) *Wait {
	w := &Wait{
		name: name,
		done: make(chan Result, 1),
	}

	d.mx.Lock()
	old := d.waits[name]
	d.waits[name] = w
	w.timer = time.AfterFunc(d.timeout, func() { d.expire(w) })
	d.mx.Unlock()

	if old != nil {
		old.resolve(Result{})
		d.logger.Debug().Str("name", name).Msg("poll superseded")
	}
	return w
}

// Take detaches the wait for name and stops its timer. The caller owns the
// returned wait and must resolve it. Returns nil if nothing is parked.
func (d *Dispatcher) Take(name string) *Wait {
	d.mx.Lock()
	defer d.mx.Unlock()

	w, ok := d.waits[name]
	if !ok {
		return nil
	}
	delete(d.waits, name)
	w.timer.Stop()
	return w
}

// Cancel resolves the wait for name with no content.
func (d *Dispatcher) Cancel(name string) bool {
	w := d.Take(name)
	if w == nil {
		return false
	}
	w.resolve(Result{})
	d.logger.Debug().Str("name", name).Msg("poll canceled")
	return true
}

// Release purges w if it is still the current wait for its participant and
// resolves it with no content. A wait that is no longer current already has
// an owner, and that owner resolves it. Used when the polling client went away.
func (d *Dispatcher) Release(w *Wait) {
	d.mx.Lock()
	cur, ok := d.waits[w.name]
	if !ok || cur != w {
		d.mx.Unlock()
		return
	}
	delete(d.waits, w.name)
	d.mx.Unlock()

	w.resolve(Result{})
}

// CancelAll resolves every parked wait with no content.
func (d *Dispatcher) CancelAll() int {
	d.mx.Lock()
	waits := d.waits
	d.waits = make(map[string]*Wait)
	d.mx.Unlock()

	for _, w := range waits {
		w.resolve(Result{})
	}
	return len(waits)
}

func (d *Dispatcher) Pending(name string) bool {
	d.mx.Lock()
	defer d.mx.Unlock()

	_, ok := d.waits[name]
	return ok
}

func (d *Dispatcher) Len() int {
	d.mx.Lock()
	defer d.mx.Unlock()

	return len(d.waits)
}

func (d *Dispatcher) expire(w *Wait) {
	d.mx.Lock()
	cur, ok := d.waits[w.name]
	if !ok || cur != w {
		d.mx.Unlock()
		return
	}
	delete(d.waits, w.name)
	d.mx.Unlock()

	w.resolve(Result{})
	d.logger.Debug().Str("name", w.name).Msg("poll timed out")
}
