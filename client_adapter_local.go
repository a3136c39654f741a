package amplitude

import (
	"context"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
	"github.com/amplitude/experiment-go-server/pkg/experiment/local"
)

// localEvaluator is the subset of [local.Client] used by the adapter.
type localEvaluator interface {
	Start() error
	EvaluateV2(user *experiment.User, flagKeys []string) (map[string]experiment.Variant, error)
}

// clientAdapterLocal wraps the Amplitude local evaluation client.
type clientAdapterLocal struct {
	evaluator localEvaluator
}

// localConfig contains configuration for local evaluation.
type localConfig struct {
	local.Config
}

// newClientAdapterLocal creates a local evaluation adapter for deploymentKey.
// The client must be started by calling Start() before use.
func newClientAdapterLocal(deploymentKey string, config localConfig) *clientAdapterLocal {
	return &clientAdapterLocal{
		evaluator: local.Initialize(deploymentKey, &config.Config),
	}
}

// Start starts the local evaluation client, fetching flag configurations.
func (c *clientAdapterLocal) Start() error {
	return c.evaluator.Start()
}

// Stop stops the local evaluation client.
func (c *clientAdapterLocal) Stop() error {
	return nil
}

// Clear is a no-op: local evaluation keeps only flag configurations, not variants.
func (c *clientAdapterLocal) Clear(context.Context) error {
	return nil
}

// Fetch evaluates every flag for user against the locally held flag configurations.
func (c *clientAdapterLocal) Fetch(_ context.Context, user *experiment.User) (map[string]experiment.Variant, error) {
	return c.evaluator.EvaluateV2(user, nil)
}
