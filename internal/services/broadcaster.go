package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chachabrian/evvalet-backend/internal/models"
	"github.com/chachabrian/evvalet-backend/internal/observability"
)

// subscriberBuffer is how many undelivered events a slow subscriber may hold
// before new ones are dropped for it.
const subscriberBuffer = 64

// Publisher accepts committed marketplace events.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// Broadcaster is a Publisher that UIs can subscribe to by topic. The returned
// channel is closed once ctx is done.
type Broadcaster interface {
	Publisher
	Subscribe(ctx context.Context, topic models.Topic) (<-chan models.Event, error)
}

// LocalBroadcaster fans events out to subscribers in this process.
type LocalBroadcaster struct {
	mu     sync.RWMutex
	topics map[models.Topic]map[chan models.Event]struct{}
	log    logrus.FieldLogger
}

func NewLocalBroadcaster(log logrus.FieldLogger) *LocalBroadcaster {
	return &LocalBroadcaster{
		topics: make(map[models.Topic]map[chan models.Event]struct{}),
		log:    log,
	}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, event models.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.topics[event.Topic] {
		select {
		case ch <- event:
		default:
			observability.BroadcastFailures.WithLabelValues("local").Inc()
			b.log.WithFields(logrus.Fields{"topic": event.Topic, "event": event.Type}).Warn("subscriber too slow, event dropped")
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, topic models.Topic) (<-chan models.Event, error) {
	ch := make(chan models.Event, subscriberBuffer)

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan models.Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Subscribers reports how many subscriptions a topic has.
func (b *LocalBroadcaster) Subscribers(topic models.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Sink is a named Publisher inside a Fanout.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout delivers each event to every sink. A failing sink is logged and
// counted and does not stop delivery to the rest.
type Fanout struct {
	sinks []Sink
	log   logrus.FieldLogger
}

func NewFanout(log logrus.FieldLogger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Publish(ctx context.Context, event models.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, event); err != nil {
			observability.BroadcastFailures.WithLabelValues(s.Name).Inc()
			f.log.WithError(err).WithFields(logrus.Fields{
				"sink":  s.Name,
				"topic": event.Topic,
				"event": event.Type,
			}).Warn("sink publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// AsyncPublisher queues events for a slower Publisher and delivers them from
// a single goroutine started by Run or Start. Events are dropped when the queue is full.
type AsyncPublisher struct {
	next  Publisher
	queue chan models.Event
	log   logrus.FieldLogger

	stop context.CancelFunc
	done chan struct{}
}

func NewAsyncPublisher(next Publisher, size int, log logrus.FieldLogger) *AsyncPublisher {
	return &AsyncPublisher{next: next, queue: make(chan models.Event, size), log: log}
}

func (a *AsyncPublisher) Publish(ctx context.Context, event models.Event) error {
	select {
	case a.queue <- event:
		return nil
	default:
		observability.BroadcastFailures.WithLabelValues("async_queue").Inc()
		return fmt.Errorf("event queue full, dropped %s", event.Type)
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (a *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case e := <-a.queue:
			a.deliver(context.WithoutCancel(ctx), e)
		case <-ctx.Done():
			for {
				select {
				case e := <-a.queue:
					a.deliver(context.WithoutCancel(ctx), e)
				default:
					return
				}
			}
		}
	}
}

// Start runs the delivery loop in the background until Stop.
func (a *AsyncPublisher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.stop, a.done = cancel, done
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
}

// Stop drains the queue and waits for the delivery loop to return, or for ctx
// to expire.
func (a *AsyncPublisher) Stop(ctx context.Context) error {
	if a.stop == nil {
		return nil
	}
	a.stop()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining event queue: %w", ctx.Err())
	}
}

func (a *AsyncPublisher) deliver(ctx context.Context, e models.Event) {
	if err := a.next.Publish(ctx, e); err != nil {
		a.log.WithError(err).WithField("event", e.Type).Debug("async delivery failed")
	}
}
