package amplitude

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
	"github.com/rs/zerolog"
)

// FetchState is the state of the fetch coordinator.
type FetchState int32

const (
	// FetchStateIdle means no fetch is running or queued.
	FetchStateIdle FetchState = iota
	// FetchStateFetching means a fetch is running or waiting in the queue.
	FetchStateFetching
)

func (s FetchState) String() string {
	switch s {
	case FetchStateIdle:
		return "idle"
	case FetchStateFetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// fetchRequest is one logical fetch. A request whose err is already set
// (not initialized, invalid input, closed) still travels through the queue
// so that its notification keeps its place in issue order.
type fetchRequest struct {
	id      string
	session *session
	user    *experiment.User
	err     error
	// done, if set, receives the outcome once the notification is queued.
	done chan Outcome
	// retire marks a queue entry that stops session's adapter instead of
	// fetching. It runs after every fetch queued against that session.
	retire bool
}

// coordinator serializes fetches: a fetch issued while another is running
// waits in a FIFO queue behind it. Running fetches are never cancelled.
// For each request it applies the result to the cache (on success) and then
// emits exactly one notification.
type coordinator struct {
	cache    *VariantCache
	notifier *notifier
	logger   zerolog.Logger
	queue    *serialQueue[*fetchRequest]

	// outstanding counts requests submitted but not yet resolved.
	outstanding atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func newCoordinator(cache *VariantCache, notifier *notifier, logger zerolog.Logger) *coordinator {
	c := &coordinator{
		cache:    cache,
		notifier: notifier,
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
	c.queue = newSerialQueue(c.execute)
	return c
}

// submit queues req. It never blocks on the fetch itself.
// After close, req resolves with [ErrClosed] in its place in the queue.
func (c *coordinator) submit(req *fetchRequest) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		req.err = ErrClosed
	}
	c.outstanding.Add(1)
	c.queue.push(req)
}

// retire stops the adapter of s once the fetches already queued against it
// have run.
func (c *coordinator) retire(s *session) {
	c.queue.push(&fetchRequest{session: s, retire: true})
}

func (c *coordinator) execute(req *fetchRequest) {
	if req.retire {
		if err := req.session.adapter.Stop(); err != nil {
			c.logger.Error().Err(err).Str("instance", req.session.config.InstanceName).
				Msg("failed to stop replaced experiment client")
		}
		return
	}
	if req.err != nil {
		c.resolve(req, req.err)
		return
	}

	log := c.logger.With().Str("request_id", req.id).Logger()
	log.Debug().
		Bool("has_user_id", req.user.UserId != "").
		Bool("has_device_id", req.user.DeviceId != "").
		Int("user_properties", len(req.user.UserProperties)).
		Int("queued", c.queue.pending()).
		Msg("fetching variants")

	set, err := c.fetch(req)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed, keeping cached variants")
		c.resolve(req, fmt.Errorf("%w: %w", ErrNetworkFailure, err))
		return
	}
	c.cache.Apply(set)
	log.Debug().Int("variants", len(set)).Msg("fetch completed")
	c.resolve(req, nil)
}

// fetch calls the adapter, turning a panic inside the SDK into an error so
// that the request is still resolved.
func (c *coordinator) fetch(req *fetchRequest) (set VariantSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			set, err = nil, fmt.Errorf("experiment client panicked: %v", r)
		}
	}()
	variants, err := req.session.adapter.Fetch(context.Background(), req.user)
	if err != nil {
		return nil, err
	}
	return newVariantSet(variants), nil
}

// resolve marks req done and emits its outcome.
func (c *coordinator) resolve(req *fetchRequest, err error) {
	c.outstanding.Add(-1)
	outcome := Outcome{
		RequestID: req.id,
		Operation: OperationFetch,
		Err:       err,
	}
	c.notifier.notify(outcome)
	if req.done != nil {
		req.done <- outcome
	}
}

func (c *coordinator) state() FetchState {
	if c.outstanding.Load() > 0 {
		return FetchStateFetching
	}
	return FetchStateIdle
}

// close makes later fetches resolve with [ErrClosed] and waits for the
// fetches queued before it to resolve.
func (c *coordinator) close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.queue.wait(ctx)
}
