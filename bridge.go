package amplitude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// session is the client built by one successful Initialize.
type session struct {
	config  ClientConfig
	adapter clientAdapter
}

// Bridge owns the state behind the flat bridge surface: the session, the
// variant cache, the callback registration and the fetch queue.
//
// A Bridge is created with [New], becomes usable after [Bridge.Initialize]
// and is torn down with [Bridge.Close]. Independent bridges share nothing.
// All methods are safe for concurrent use.
type Bridge struct {
	config Config
	logger zerolog.Logger

	initMu  sync.Mutex
	session atomic.Pointer[session]
	closed  atomic.Bool
	// issueMu orders session swaps against fetch submission, so a replaced
	// adapter is retired only after every fetch that captured it.
	issueMu sync.RWMutex

	cache       *VariantCache
	notifier    *notifier
	coordinator *coordinator
}

// New creates a [Bridge] from options. It does not contact Amplitude.
func New(options ...Option) *Bridge {
	var config Config
	for _, option := range options {
		option(&config)
	}
	config.KeyMap = config.getKeyMap()
	logger := config.getLogger()

	b := &Bridge{
		config: config,
		logger: logger.With().Str("component", "bridge").Logger(),
		cache:  NewVariantCache(),
	}
	b.notifier = newNotifier(config.Dispatcher, strings.TrimSpace(config.CallbackTarget), logger)
	b.coordinator = newCoordinator(b.cache, b.notifier, logger)
	return b
}

// Initialize starts an Amplitude Experiment client for apiKey.
//
// Calling it again re-initializes: later fetches use the new client, while
// fetches already queued finish with the client they were issued against.
// An empty apiKey fails with [ErrInvalidInput] and leaves the bridge as it
// was. If the client fails to start, an [OperationInitialize] outcome is
// delivered to the callback target and the previous session is kept.
func (b *Bridge) Initialize(apiKey, instanceName string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		b.logger.Error().Msg("API key cannot be empty")
		return fmt.Errorf("%w: API key cannot be empty", ErrInvalidInput)
	}

	b.initMu.Lock()
	defer b.initMu.Unlock()
	if b.closed.Load() {
		return ErrClosed
	}

	log := b.logger.With().Str("instance", instanceName).Logger()

	adapter, err := b.newClientAdapter(apiKey)
	if err != nil {
		log.Error().Err(err).Msg("failed to create experiment client")
		return err
	}
	if startErr := adapter.Start(); startErr != nil {
		err := fmt.Errorf("failed to start experiment client: %w", startErr)
		log.Error().Err(startErr).Msg("failed to initialize")
		b.notifier.notify(Outcome{
			RequestID: uuid.NewString(),
			Operation: OperationInitialize,
			Err:       err,
		})
		return err
	}

	b.issueMu.Lock()
	previous := b.session.Swap(&session{
		config:  ClientConfig{APIKey: apiKey, InstanceName: instanceName},
		adapter: adapter,
	})
	if previous != nil && previous.adapter != adapter {
		b.coordinator.retire(previous)
	}
	b.issueMu.Unlock()

	if previous != nil {
		log.Info().Msg("re-initialized experiment client")
	} else {
		log.Info().Msg("initialized experiment client")
	}
	return nil
}

// newClientAdapter builds the adapter for the configured evaluation mode.
func (b *Bridge) newClientAdapter(apiKey string) (clientAdapter, error) {
	// Allow injecting a test client adapter for testing
	if b.config.testClientAdapter != nil {
		return b.config.testClientAdapter, nil
	}

	switch {
	case b.config.LocalConfig != nil && b.config.RemoteConfig != nil:
		return nil, fmt.Errorf("%w: cannot use both local and remote evaluation at the same time", ErrInvalidInput)
	case b.config.LocalConfig != nil:
		return newClientAdapterLocal(apiKey, b.config.getLocalConfig()), nil
	default:
		return newClientAdapterRemote(apiKey, b.config.getRemoteConfig()), nil
	}
}

// IsInitialized reports whether a client has been started successfully.
func (b *Bridge) IsInitialized() bool {
	return b.session.Load() != nil
}

// ClientConfig returns the configuration of the current session.
// The second result is false before a successful Initialize.
func (b *Bridge) ClientConfig() (ClientConfig, bool) {
	s := b.session.Load()
	if s == nil {
		return ClientConfig{}, false
	}
	return s.config, true
}

// Fetch requests the variants for an identity and returns immediately with
// the request ID.
//
// Fetches run one at a time in the order they were issued. Each one
// produces exactly one outcome for the callback target: [ErrNotInitialized]
// before Initialize, [ErrInvalidInput] for malformed userPropertiesJSON,
// [ErrNetworkFailure] when the client fails, [ErrClosed] after Close.
// Outcomes of fetches issued after Close are delivered too, after the ones
// issued before it.
// A failed fetch leaves the cached variants untouched.
func (b *Bridge) Fetch(userID, deviceID, userPropertiesJSON string) string {
	identity, parseErr := ParseIdentity(userID, deviceID, userPropertiesJSON)

	b.issueMu.RLock()
	defer b.issueMu.RUnlock()
	req := b.newFetchRequest()
	if req.err == nil {
		if parseErr != nil {
			req.err = parseErr
		} else {
			req.user, req.err = identity.user()
		}
	}
	b.coordinator.submit(req)
	return req.id
}

// FetchAndWait issues a fetch for identity like [Bridge.Fetch] and waits
// for its outcome. The outcome is still delivered to the callback target.
// If ctx ends first, ctx.Err() is returned and the fetch keeps running.
func (b *Bridge) FetchAndWait(ctx context.Context, identity Identity) error {
	b.issueMu.RLock()
	req := b.newFetchRequest()
	if req.err == nil {
		req.user, req.err = identity.user()
	}
	req.done = make(chan Outcome, 1)
	b.coordinator.submit(req)
	b.issueMu.RUnlock()

	select {
	case outcome := <-req.done:
		return outcome.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) newFetchRequest() *fetchRequest {
	req := &fetchRequest{
		id:      uuid.NewString(),
		session: b.session.Load(),
	}
	if req.session == nil {
		req.err = ErrNotInitialized
	}
	return req
}

// GetVariant returns the cached variant for flagKey.
// It returns a nil variant and nil error when no variant is cached for the
// key, and [ErrNotInitialized] before Initialize. It never blocks.
func (b *Bridge) GetVariant(flagKey string) (*Variant, error) {
	if !b.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if flagKey == "" {
		return nil, fmt.Errorf("%w: flag key cannot be empty", ErrInvalidInput)
	}
	variant, ok := b.cache.Lookup(flagKey)
	if !ok {
		return nil, nil
	}
	return &variant, nil
}

// GetVariantJSON returns the cached variant for flagKey serialized as
// {"key","value","payload"}, or "" when there is none.
func (b *Bridge) GetVariantJSON(flagKey string) string {
	variant, err := b.GetVariant(flagKey)
	if err != nil {
		b.logger.Debug().Err(err).Str("flag", flagKey).Msg("get variant failed")
		return ""
	}
	if variant == nil {
		return ""
	}
	out, err := variant.JSON()
	if err != nil {
		b.logger.Error().Err(err).Str("flag", flagKey).Msg("failed to serialize variant")
		return ""
	}
	return out
}

// AllVariants returns a copy of every cached variant.
func (b *Bridge) AllVariants() (VariantSet, error) {
	if !b.IsInitialized() {
		return VariantSet{}, ErrNotInitialized
	}
	return b.cache.Snapshot(), nil
}

// AllVariantsJSON returns every cached variant as a JSON object keyed by
// flag, or "{}".
func (b *Bridge) AllVariantsJSON() string {
	set, err := b.AllVariants()
	if err != nil {
		return "{}"
	}
	out, err := set.JSON()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to serialize variants")
		return "{}"
	}
	return out
}

// Clear empties the variant cache and the client's own cache, if any.
// Lookups miss until the next successful fetch.
func (b *Bridge) Clear() error {
	s := b.session.Load()
	if s == nil {
		return ErrNotInitialized
	}
	b.cache.Clear()
	if err := s.adapter.Clear(context.Background()); err != nil {
		b.logger.Error().Err(err).Msg("failed to clear experiment client cache")
		return fmt.Errorf("failed to clear experiment client cache: %w", err)
	}
	b.logger.Debug().Msg("cleared all variants")
	return nil
}

// SetCallbackTarget replaces the callback target. Outcomes produced while no
// target is registered are dropped.
func (b *Bridge) SetCallbackTarget(target string) {
	target = strings.TrimSpace(target)
	b.notifier.register(target)
	b.logger.Debug().Str("target", target).Msg("callback target set")
}

// CallbackTarget returns the current callback target.
func (b *Bridge) CallbackTarget() string {
	return b.notifier.currentTarget()
}

// State returns the fetch coordinator state.
func (b *Bridge) State() FetchState {
	return b.coordinator.state()
}

// Close tears the bridge down. Queued fetches are allowed to finish and
// their outcomes are delivered before Close returns, unless ctx ends first.
// Fetches issued after Close resolve with [ErrClosed] and are still
// notified; Initialize after Close fails with [ErrClosed].
func (b *Bridge) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Wait for a running Initialize so its session is the one stopped below.
	b.initMu.Lock()
	defer b.initMu.Unlock()

	var errs []error
	if err := b.coordinator.close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for fetches: %w", err))
	}
	if err := b.notifier.close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for notifications: %w", err))
	}
	if s := b.session.Load(); s != nil {
		if err := s.adapter.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping experiment client: %w", err))
		}
	}
	b.logger.Info().Msg("closed")
	return errors.Join(errs...)
}
