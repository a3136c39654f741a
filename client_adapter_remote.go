package amplitude

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
	"github.com/amplitude/experiment-go-server/pkg/experiment/remote"
	"github.com/rs/zerolog"
)

// remoteEvaluator is the subset of [remote.Client] used by the adapter.
type remoteEvaluator interface {
	FetchV2(user *experiment.User) (map[string]experiment.Variant, error)
}

// clientAdapterRemote wraps the Amplitude remote evaluation client.
type clientAdapterRemote struct {
	evaluator remoteEvaluator
	cache     Cache
	logger    zerolog.Logger
}

// remoteConfig contains configuration for remote evaluation.
type remoteConfig struct {
	remote.Config
	Cache  Cache
	Logger zerolog.Logger
}

// newClientAdapterRemote creates a remote evaluation adapter for deploymentKey.
func newClientAdapterRemote(deploymentKey string, config remoteConfig) *clientAdapterRemote {
	return &clientAdapterRemote{
		cache:     config.Cache,
		logger:    config.Logger,
		evaluator: remote.Initialize(deploymentKey, &config.Config),
	}
}

// Start is a no-op: remote evaluation fetches per request.
func (c *clientAdapterRemote) Start() error {
	return nil
}

// Stop stops the remote evaluation client.
func (c *clientAdapterRemote) Stop() error {
	return nil
}

// Clear flushes the remote evaluation cache when it supports flushing.
func (c *clientAdapterRemote) Clear(ctx context.Context) error {
	if clearer, ok := c.cache.(cacheClearer); ok {
		return clearer.Clear(ctx)
	}
	return nil
}

// Fetch fetches all variants for user from the Amplitude evaluation servers,
// consulting the remote evaluation cache first when one is configured.
// Cache errors are logged and never fail the fetch.
func (c *clientAdapterRemote) Fetch(ctx context.Context, user *experiment.User) (map[string]experiment.Variant, error) {
	var cacheKey string
	if c.cache != nil {
		key, err := userCacheKey(user)
		if err != nil {
			return nil, err
		}
		cacheKey = key
		cacheValue, err := c.cache.Get(ctx, cacheKey)
		if err != nil {
			c.logger.Warn().Err(err).Msg("remote evaluation cache get failed")
		} else if variants, ok := cacheValue.(map[string]experiment.Variant); ok {
			return variants, nil
		}
	}

	variants, fetchErr := c.evaluator.FetchV2(user)
	if fetchErr != nil {
		return nil, fetchErr
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, variants); err != nil {
			c.logger.Warn().Err(err).Msg("remote evaluation cache set failed")
		}
	}

	return variants, nil
}

// userCacheKey hashes the JSON form of user into a cache key.
func userCacheKey(user *experiment.User) (string, error) {
	hasher := sha256.New()
	if err := json.NewEncoder(hasher).Encode(user); err != nil {
		return "", fmt.Errorf("failed to encode user to create cache key: %w", err)
	}
	return string(hasher.Sum(nil)), nil
}
