package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tabscribe/internal/logging"
)

var log = logging.L("ipc")

var (
	// ErrQueueFull is returned by Deliver when the channel cannot accept
	// another envelope without blocking.
	ErrQueueFull = errors.New("ipc: channel queue full")
	// ErrClosed is returned by Deliver after Close.
	ErrClosed = errors.New("ipc: channel closed")
)

// DefaultQueueSize bounds each channel's pending envelopes.
const DefaultQueueSize = 64

// Channel is one direction of the boundary. Envelopes are delivered without
// blocking the sender and dispatched in arrival order by a single goroutine,
// so ordering within an action type is preserved.
type Channel struct {
	name   string
	expect string
	queue  chan Envelope
	done   chan struct{}

	mu       sync.RWMutex
	closed   bool
	handlers map[string][]func(Envelope)
	taps     map[int]func(Envelope)
	nextTap  int
	wg       sync.WaitGroup
}

// NewChannel creates a channel that only accepts envelopes whose Source
// equals expectSource.
func NewChannel(name, expectSource string, queueSize int) *Channel {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	c := &Channel{
		name:     name,
		expect:   expectSource,
		queue:    make(chan Envelope, queueSize),
		done:     make(chan struct{}),
		handlers: make(map[string][]func(Envelope)),
		taps:     make(map[int]func(Envelope)),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c
}

// Name returns the channel name used in logs.
func (c *Channel) Name() string {
	return c.name
}

// Deliver enqueues a raw envelope. It never blocks.
func (c *Channel) Deliver(env Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.queue <- env:
		return nil
	default:
		log.WithField("channel", c.name).WithField("action", env.Action).Warn("queue full, envelope dropped")
		return ErrQueueFull
	}
}

// Post marshals a typed message and delivers it.
func Post(c *Channel, source string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: marshal %s: %w", msg.Action(), err)
	}
	return c.Deliver(Envelope{Action: msg.Action(), Source: source, Data: data})
}

// Handle registers fn for every accepted envelope whose action matches T.
// Payloads that fail to decode into T are dropped.
func Handle[T Message](c *Channel, fn func(T)) {
	var zero T
	action := zero.Action()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[action] = append(c.handlers[action], func(env Envelope) {
		var msg T
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				log.WithField("channel", c.name).WithField("action", action).WithError(err).Warn("undecodable payload dropped")
				return
			}
		}
		fn(msg)
	})
}

// Tap registers fn for every accepted envelope regardless of action. The
// returned function removes the tap.
func (c *Channel) Tap(fn func(Envelope)) func() {
	c.mu.Lock()
	id := c.nextTap
	c.nextTap++
	c.taps[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.taps, id)
		c.mu.Unlock()
	}
}

// Close stops dispatching. Envelopes still queued are discarded.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Channel) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.queue:
			c.route(env)
		}
	}
}

func (c *Channel) route(env Envelope) {
	if env.Source != c.expect {
		log.WithField("channel", c.name).WithField("source", env.Source).Debug("envelope from unexpected source ignored")
		return
	}

	c.mu.RLock()
	hs := append([]func(Envelope){}, c.handlers[env.Action]...)
	taps := make([]func(Envelope), 0, len(c.taps))
	for _, t := range c.taps {
		taps = append(taps, t)
	}
	c.mu.RUnlock()

	for _, t := range taps {
		t(env)
	}
	for _, h := range hs {
		h(env)
	}
}
