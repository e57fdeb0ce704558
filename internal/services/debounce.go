package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type pendingSave struct {
	timer *time.Timer
	gen   uint64
}

// SaveDebouncer coalesces draft saves so each session has at most one
// outstanding write per window.
type SaveDebouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	logger  *zap.Logger
	pending map[*FormSession]*pendingSave
	gen     uint64
	stopped bool

	// inflight counts timers that are armed or running. Guarded by mu.
	inflight int
	idle     *sync.Cond
}

func NewSaveDebouncer(delay time.Duration, logger *zap.Logger) *SaveDebouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &SaveDebouncer{delay: delay, logger: logger, pending: map[*FormSession]*pendingSave{}}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Schedule (re)starts the save window for sess.
func (d *SaveDebouncer) Schedule(sess *FormSession) {
	if sess == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[sess]; ok {
		if p.timer.Stop() {
			d.done()
		}
	}
	d.gen++
	gen := d.gen
	d.inflight++
	d.pending[sess] = &pendingSave{
		gen:   gen,
		timer: time.AfterFunc(d.delay, func() { d.fire(sess, gen) }),
	}
}

// done must be called with mu held.
func (d *SaveDebouncer) done() {
	d.inflight--
	if d.inflight == 0 {
		d.idle.Broadcast()
	}
}

// wait blocks until no timer is armed or running. mu must be held.
func (d *SaveDebouncer) wait() {
	for d.inflight > 0 {
		d.idle.Wait()
	}
}

func (d *SaveDebouncer) fire(sess *FormSession, gen uint64) {
	defer func() {
		d.mu.Lock()
		d.done()
		d.mu.Unlock()
	}()
	d.mu.Lock()
	if p, ok := d.pending[sess]; ok && p.gen == gen {
		delete(d.pending, sess)
	}
	d.mu.Unlock()
	if err := sess.Save(context.Background()); err != nil {
		d.logger.Warn("debounced save failed",
			zap.String("identity", sess.Identity().Key()),
			zap.String("category", string(sess.Category())),
			zap.Error(err))
	}
}

// Pending reports how many sessions have a save scheduled.
func (d *SaveDebouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush cancels every timer and saves the affected sessions immediately.
func (d *SaveDebouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	sessions := make([]*FormSession, 0, len(d.pending))
	for sess, p := range d.pending {
		if p.timer.Stop() {
			d.done()
			sessions = append(sessions, sess)
		}
		delete(d.pending, sess)
	}
	d.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.mu.Lock()
	d.wait()
	d.mu.Unlock()
	return errors.Join(errs...)
}

// Stop cancels pending saves without persisting them and waits for in-flight
// saves to finish. Later Schedule calls are ignored.
func (d *SaveDebouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for sess, p := range d.pending {
		if p.timer.Stop() {
			d.done()
		}
		delete(d.pending, sess)
	}
	d.wait()
	d.mu.Unlock()
}
