package amplitude

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// notifier delivers outcomes to the registered callback target.
//
// notify only enqueues; a single delivery goroutine calls the dispatcher, so
// the coordinator never waits on the host and outcomes leave in the order
// they were produced.
type notifier struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	queue      *serialQueue[Delivery]

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	target string
}

func newNotifier(dispatcher Dispatcher, target string, logger zerolog.Logger) *notifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &notifier{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "notifier").Logger(),
		target:     target,
		ctx:        ctx,
		cancel:     cancel,
	}
	n.queue = newSerialQueue(n.deliver)
	return n
}

// register replaces the callback target. An empty target unregisters.
func (n *notifier) register(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = target
}

func (n *notifier) currentTarget() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.target
}

// notify queues outcome for delivery. Without a target or dispatcher the
// outcome is dropped and logged.
func (n *notifier) notify(outcome Outcome) {
	log := n.logger.With().
		Str("request_id", outcome.RequestID).
		Str("method", outcome.Method()).
		Logger()

	target := n.currentTarget()
	if target == "" {
		log.Warn().Msg("no callback target registered, dropping notification")
		return
	}
	if n.dispatcher == nil {
		log.Warn().Msg("no dispatcher configured, dropping notification")
		return
	}
	n.queue.push(Delivery{Target: target, Outcome: outcome})
}

func (n *notifier) deliver(delivery Delivery) {
	if n.ctx.Err() != nil {
		n.logger.Warn().
			Str("request_id", delivery.Outcome.RequestID).
			Str("target", delivery.Target).
			Msg("notifier shut down, dropping notification")
		return
	}
	if err := n.dispatcher.Dispatch(n.ctx, delivery); err != nil {
		n.logger.Error().Err(err).
			Str("request_id", delivery.Outcome.RequestID).
			Str("target", delivery.Target).
			Msg("failed to dispatch notification")
	}
}

// close waits for queued deliveries. Outcomes notified afterwards are still
// delivered in order. If ctx ends first, the running dispatch is cancelled
// and every delivery still pending or notified later is dropped.
func (n *notifier) close(ctx context.Context) error {
	if err := n.queue.wait(ctx); err != nil {
		n.cancel()
		return err
	}
	return nil
}
