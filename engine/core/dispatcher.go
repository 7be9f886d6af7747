package core

import (
	"context"
	"sync"
)

// Dispatcher is the owning context's mailbox. Functions posted to it run one at a
// time, in post order, on whichever goroutine drains it.
type Dispatcher struct {
	mailbox chan func()
	done    chan struct{}
	once    sync.Once
}

func NewDispatcher(size int) *Dispatcher {
	if size < 0 {
		size = 0
	}
	return &Dispatcher{
		mailbox: make(chan func(), size),
		done:    make(chan struct{}),
	}
}

// Post queues fn. It blocks while the mailbox is full and returns false once the
// dispatcher is stopped.
func (d *Dispatcher) Post(fn func()) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	select {
	case d.mailbox <- fn:
		return true
	case <-d.done:
		return false
	}
}

// PostUnless is Post that also gives up once cancel is closed. Producers that
// must not outlive a shutdown of their own use it instead of Post.
func (d *Dispatcher) PostUnless(fn func(), cancel <-chan struct{}) bool {
	select {
	case <-d.done:
		return false
	case <-cancel:
		return false
	default:
	}
	select {
	case d.mailbox <- fn:
		return true
	case <-d.done:
		return false
	case <-cancel:
		return false
	}
}

// Do posts fn and waits until it has run.
func (d *Dispatcher) Do(fn func()) error {
	ran := make(chan struct{})
	if !d.Post(func() {
		defer close(ran)
		fn()
	}) {
		return ErrDispatcherStopped
	}
	select {
	case <-ran:
		return nil
	case <-d.done:
		return ErrDispatcherStopped
	}
}

// Mailbox is drained by the owner loop.
func (d *Dispatcher) Mailbox() <-chan func() {
	return d.mailbox
}

func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run drains the mailbox until ctx is cancelled or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case fn := <-d.mailbox:
			fn()
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
}
