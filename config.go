package amplitude

import (
	"github.com/amplitude/experiment-go-server/pkg/experiment/local"
	"github.com/amplitude/experiment-go-server/pkg/experiment/remote"
	"github.com/rs/zerolog"
)

// ClientConfig is the identity of an initialized session. It is immutable;
// re-initializing replaces it with a new value.
type ClientConfig struct {
	// APIKey is the Amplitude Experiment deployment key. It is never logged.
	APIKey string
	// InstanceName is an optional label for the session.
	InstanceName string
}

// Config contains the configuration for a [Bridge].
// Either LocalConfig or RemoteConfig may be set, but not both.
// If neither is set, remote evaluation with default settings is used.
type Config struct {
	// LocalConfig is optional configuration for local evaluation.
	// If set, flag rules are downloaded once and variants are evaluated in-process.
	LocalConfig *local.Config
	// RemoteConfig is optional configuration for remote evaluation,
	// the default mode.
	RemoteConfig *remote.Config
	// RemoteEvaluationCache is an optional cache for remote evaluation.
	// Fetches for an identity already in the cache skip the round trip.
	RemoteEvaluationCache Cache
	// KeyMap maps evaluation context keys to the canonical Amplitude user fields.
	// It is used by [Provider] when it fetches for an OpenFeature evaluation context.
	// If unset, [DefaultKeyMap] will be used.
	KeyMap map[string]Key
	// Logger receives the bridge's structured logs. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Dispatcher delivers fetch outcomes to the host.
	// Without one, outcomes are logged and dropped.
	Dispatcher Dispatcher
	// CallbackTarget is the initial callback target. It can be replaced
	// at any time with [Bridge.SetCallbackTarget].
	CallbackTarget string

	// testClientAdapter is an optional clientAdapter for testing.
	// When set, Initialize will use this instead of creating a real client.
	testClientAdapter clientAdapter
}

// Option is a function that configures the Config.
type Option func(*Config)

// WithLocalConfig sets the local configuration and selects local evaluation.
func WithLocalConfig(localConfig local.Config) Option {
	return func(c *Config) {
		c.LocalConfig = &localConfig
	}
}

// WithRemoteConfig sets the remote configuration.
func WithRemoteConfig(remoteConfig remote.Config) Option {
	return func(c *Config) {
		c.RemoteConfig = &remoteConfig
	}
}

// WithRemoteEvaluationCache sets the cache for remote evaluation.
// This will be used to cache the variants fetched for a given identity,
// so subsequent fetches for the same identity don't need to
// re-fetch the variants from the server.
func WithRemoteEvaluationCache(cache Cache) Option {
	return func(c *Config) {
		c.RemoteEvaluationCache = cache
	}
}

// WithKeyMap sets the key map used to build Amplitude users from
// OpenFeature evaluation contexts.
// If unset, [DefaultKeyMap] will be used.
func WithKeyMap(keyMap map[string]Key) Option {
	return func(c *Config) {
		c.KeyMap = keyMap
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &logger
	}
}

// WithDispatcher sets the dispatcher that delivers outcomes to the host.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = dispatcher
	}
}

// WithCallbackTarget sets the initial callback target.
func WithCallbackTarget(target string) Option {
	return func(c *Config) {
		c.CallbackTarget = target
	}
}

// getKeyMap returns the key map, or a fresh [DefaultKeyMap] if unset.
// It never writes to c; [New] resolves the default once.
func (c *Config) getKeyMap() map[string]Key {
	if c.KeyMap == nil {
		return DefaultKeyMap()
	}
	return c.KeyMap
}

// getLogger returns the configured logger or a no-op logger.
func (c *Config) getLogger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// getLocalConfig returns the local evaluation configuration.
func (c *Config) getLocalConfig() localConfig {
	if c.LocalConfig == nil {
		return localConfig{}
	}
	return localConfig{Config: *c.LocalConfig}
}

// getRemoteConfig returns the remote evaluation configuration.
func (c *Config) getRemoteConfig() remoteConfig {
	var cfg remote.Config
	if c.RemoteConfig != nil {
		cfg = *c.RemoteConfig
	}
	return remoteConfig{
		Config: cfg,
		Cache:  c.RemoteEvaluationCache,
		Logger: c.getLogger().With().Str("component", "remote_adapter").Logger(),
	}
}
