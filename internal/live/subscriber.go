package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/blackmichael/confession-board/internal/domain"
	"github.com/blackmichael/confession-board/internal/metrics"
)

const statsLogInterval = 30 * time.Second

// ErrUnknownListener is returned when unsubscribing an id that is not
// registered, including one that was already released.
var ErrUnknownListener = errors.New("unknown listener")

// Subscriber delivers live confessions from an event source to registered
// listeners. Each listener owns its own chain subscription and goroutine.
type Subscriber struct {
	source         domain.EventSource
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	nextID    domain.ListenerID
	listeners map[domain.ListenerID]*listener
}

type listener struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber creates a new live subscriber.
func NewSubscriber(source domain.EventSource, reconnectDelay time.Duration, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		source:         source,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		listeners:      make(map[domain.ListenerID]*listener),
	}
}

// Subscribe registers onEvent for every new confession. The first
// subscription is opened before returning so that connection errors reach
// the caller. Events are delivered in order on a single goroutine until
// Unsubscribe is called with the returned id or ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, onEvent func(domain.Confession)) (domain.ListenerID, error) {
	ctx, cancel := context.WithCancel(ctx)

	sink := make(chan domain.Confession, 16)
	sub, err := s.source.WatchConfessions(ctx, sink)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("watch confessions: %w", err)
	}

	l := &listener{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.mu.Unlock()
	metrics.ActiveListeners.Inc()

	s.logger.Info("live listener registered", "listener", id)

	go func() {
		defer close(l.done)
		s.run(ctx, id, sub, sink, onEvent)
	}()

	return id, nil
}

// Unsubscribe releases the listener registered under id and waits for its
// goroutine to exit. onEvent is not called after Unsubscribe returns.
func (s *Subscriber) Unsubscribe(id domain.ListenerID) error {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("listener %d: %w", id, ErrUnknownListener)
	}

	l.cancel()
	<-l.done
	metrics.ActiveListeners.Dec()

	s.logger.Info("live listener released", "listener", id)
	return nil
}

// Active returns the number of registered listeners.
func (s *Subscriber) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// run delivers events until ctx is cancelled, re-opening the subscription
// after errors.
func (s *Subscriber) run(ctx context.Context, id domain.ListenerID, sub event.Subscription, sink chan domain.Confession, onEvent func(domain.Confession)) {
	for {
		err := s.consume(ctx, sub, sink, onEvent)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return
		}

		s.logger.Error("confession subscription error, reconnecting", "listener", id, "error", err)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
				// backoff before reconnecting
			}

			sub, err = s.source.WatchConfessions(ctx, sink)
			if err == nil {
				break
			}
			s.logger.Error("failed to re-open confession subscription", "listener", id, "error", err)
		}

		metrics.SubscriptionReconnects.Inc()
		s.logger.Info("confession subscription re-opened", "listener", id)
	}
}

func (s *Subscriber) consume(ctx context.Context, sub event.Subscription, sink chan domain.Confession, onEvent func(domain.Confession)) error {
	var received int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case c := <-sink:
			received++
			metrics.LiveEventsReceived.Inc()
			onEvent(c)

			if time.Since(lastStatsLog) >= statsLogInterval {
				s.logger.Info("live subscription stats", "events_received", received)
				lastStatsLog = time.Now()
			}
		}
	}
}
