package amplitude

import (
	"context"

	"github.com/amplitude/experiment-go-server/pkg/experiment"
)

// clientAdapter is the seam between the bridge and the Amplitude Experiment SDK.
// It abstracts over local and remote evaluation modes; the rest of the bridge
// never sees which one is plugged in.
type clientAdapter interface {
	// Start starts the experiment client.
	Start() error
	// Fetch returns every variant assigned to user.
	// It may block on network I/O for the duration of the round trip;
	// timeouts and retries are the SDK's concern.
	Fetch(ctx context.Context, user *experiment.User) (map[string]experiment.Variant, error)
	// Clear drops any state the adapter cached on its own.
	Clear(ctx context.Context) error
	// Stop stops the experiment client.
	Stop() error
}
