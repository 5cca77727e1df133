// Package interaction correlates questions posed to a human with the
// answers that arrive later over an external channel. Each pending
// question is a single-resolution slot: the first writer (answer, timeout
// or caller cancellation) wins and every later writer is a no-op.
package interaction

import (
	"context"
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTimeout is returned to the asker when no answer arrived in time.
	ErrTimeout = errors.New("interaction: timed out waiting for answer")

	// ErrClosed is returned for asks against a closed correlator.
	ErrClosed = errors.New("interaction: correlator closed")
)

// Status is the lifecycle state of a pending interaction
type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
	StatusExpired  Status = "expired"
)

// Question is the outbound payload presented to the human
type Question struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deadline  time.Time `json:"deadline"`
}

// Notifier publishes questions to the external UI channel. Publishing is
// best-effort: a failed notification never fails the ask itself.
type Notifier interface {
	PublishQuestion(q Question)
}

// NopNotifier discards notifications
type NopNotifier struct{}

// PublishQuestion implements Notifier
func (NopNotifier) PublishQuestion(Question) {}

// pending is one in-flight interaction. Its slot resolves exactly once.
type pending struct {
	question Question

	mu     sync.Mutex
	status Status
	value  string
	done   chan struct{}
	timer  *time.Timer
}

// resolve transitions the slot out of pending. Returns false when another
// writer already won.
func (p *pending) resolve(status Status, value string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPending {
		return false
	}
	p.status = status
	p.value = value
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.done)
	return true
}

func (p *pending) state() (Status, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.value
}

// Correlator registers questions and suspends askers until resolution
type Correlator struct {
	notifier Notifier

	mu     sync.Mutex
	items  map[string]*pending
	closed bool

	now func() time.Time // test hook
}

// New creates a correlator publishing through the given notifier
func New(notifier Notifier) *Correlator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Correlator{
		notifier: notifier,
		items:    make(map[string]*pending),
		now:      time.Now,
	}
}

// Ask publishes a question and blocks until an answer arrives, the timeout
// elapses, or ctx is cancelled. No lock is held while waiting.
func (c *Correlator) Ask(ctx context.Context, text string, options []string, timeout time.Duration) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	now := c.now()
	p := &pending{
		question: Question{
			ID:        id,
			Text:      text,
			Options:   options,
			CreatedAt: now,
			Deadline:  now.Add(timeout),
		},
		status: StatusPending,
		done:   make(chan struct{}),
	}
	// Timer attached at creation; the periodic sweep is only a backstop.
	p.timer = time.AfterFunc(timeout, func() {
		if p.resolve(StatusExpired, "") {
			log.Debug().Str("interaction", id).Msg("Interaction expired")
		}
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.timer.Stop()
		return "", ErrClosed
	}
	c.items[id] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.items, id)
		c.mu.Unlock()
	}()

	log.Info().
		Str("interaction", id).
		Str("question", text).
		Dur("timeout", timeout).
		Msg("Question published")

	c.notifier.PublishQuestion(p.question)

	select {
	case <-p.done:
		status, value := p.state()
		if status == StatusAnswered {
			return value, nil
		}
		return "", ErrTimeout

	case <-ctx.Done():
		// Abandoning caller resolves the slot so a late answer is a no-op.
		if !p.resolve(StatusExpired, "") {
			// Lost the race: an answer landed first, deliver it.
			if status, value := p.state(); status == StatusAnswered {
				return value, nil
			}
		}
		return "", ctx.Err()
	}
}

// Answer delivers a value for a pending interaction. It returns false when
// the id is unknown, the interaction already resolved, or the value is not
// among the question's options.
func (c *Correlator) Answer(id, value string) bool {
	c.mu.Lock()
	p, ok := c.items[id]
	c.mu.Unlock()

	if !ok {
		log.Debug().Str("interaction", id).Msg("Answer for unknown interaction")
		return false
	}

	if len(p.question.Options) > 0 && !contains(p.question.Options, value) {
		log.Warn().
			Str("interaction", id).
			Str("value", value).
			Msg("Answer rejected by option validation")
		return false
	}

	accepted := p.resolve(StatusAnswered, value)
	if accepted {
		log.Info().Str("interaction", id).Msg("Answer accepted")
	}
	return accepted
}

// Pending returns the questions still awaiting an answer
func (c *Correlator) Pending() []Question {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Question, 0, len(c.items))
	for _, p := range c.items {
		if status, _ := p.state(); status == StatusPending {
			out = append(out, p.question)
		}
	}
	return out
}

// Sweep expires interactions whose deadline has passed. The per-question
// timer normally handles expiry; this is a backstop for timer failure.
func (c *Correlator) Sweep() int {
	c.mu.Lock()
	stale := make([]*pending, 0)
	now := c.now()
	for _, p := range c.items {
		if now.After(p.question.Deadline) {
			stale = append(stale, p)
		}
	}
	c.mu.Unlock()

	expired := 0
	for _, p := range stale {
		if p.resolve(StatusExpired, "") {
			expired++
		}
	}
	return expired
}

// Close fails all pending interactions and rejects new asks
func (c *Correlator) Close() {
	c.mu.Lock()
	c.closed = true
	items := make([]*pending, 0, len(c.items))
	for _, p := range c.items {
		items = append(items, p)
	}
	c.mu.Unlock()

	for _, p := range items {
		p.resolve(StatusExpired, "")
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
