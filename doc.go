// Package amplitude bridges Amplitude Experiment (https://amplitude.com/docs/experiment)
// to host applications that can only make flat, synchronous calls and receive
// callbacks, such as a Unity game loading a native library.
//
// It wraps the Amplitude Experiment Go SDK
// (https://amplitude.com/docs/sdks/experiment-sdks/experiment-go): the host
// initializes a client, asks for the variants of a user or device, is
// notified when they arrive and then reads single flags from an in-memory
// cache without blocking.
//
// # Quick Start
//
//	bridge := amplitude.New(
//	    amplitude.WithDispatcher(amplitude.DispatcherFunc(func(ctx context.Context, d amplitude.Delivery) error {
//	        // Hand the outcome to the host; d.Outcome.Method() is "OnFetchSuccess" or "OnFetchError".
//	        return nil
//	    })),
//	    amplitude.WithCallbackTarget("AmplitudeExperimentManager"),
//	)
//	defer bridge.Close(context.Background())
//
//	if err := bridge.Initialize("your-deployment-key", "game"); err != nil {
//	    panic(err)
//	}
//
//	// Returns immediately; the outcome is dispatched later.
//	bridge.Fetch("user-123", "", `{"plan":"premium"}`)
//
//	// Any time later, from any goroutine:
//	variant, err := bridge.GetVariant("my-feature-flag")
//
// The cmd/libampexp command exposes the same operations as C functions.
//
// # Fetching
//
// [Bridge.Fetch] never blocks. Fetches run one at a time on a background
// goroutine in the order they were issued; a fetch issued while another is
// running waits behind it. Every fetch produces exactly one [Outcome]:
//
//   - success: the fetched variants replace the cache as a whole
//   - [ErrNotInitialized]: Fetch was called before a successful Initialize
//   - [ErrInvalidInput]: the user properties were not a JSON object
//   - [ErrNetworkFailure]: the Amplitude client failed; the cache is unchanged
//   - [ErrClosed]: Fetch was called after Close; this outcome is delivered
//     after those of every fetch issued before Close
//
// Readers never see a mix of two fetch results: [Bridge.GetVariant] reads the
// last applied snapshot.
//
// # Callbacks
//
// Outcomes are handed to the configured [Dispatcher] on a single delivery
// goroutine, addressed to the callback target registered when the outcome
// was produced. Without a target (see [Bridge.SetCallbackTarget]) the
// outcome is dropped and logged. [ChannelDispatcher] suits hosts that drain
// outcomes from their own loop.
//
// # Local vs Remote Evaluation
//
// Remote evaluation is the default: every fetch makes a round trip to the
// Amplitude evaluation servers, which enables ID resolution and user
// enrichment. Use [WithRemoteConfig] to configure it and
// [WithRemoteEvaluationCache] to skip the round trip for identities fetched
// recently:
//
//	bridge := amplitude.New(
//	    amplitude.WithRemoteConfig(remote.Config{FetchTimeout: 5 * time.Second}),
//	    amplitude.WithRemoteEvaluationCache(amplitude.NewTTLCache(time.Minute)),
//	)
//
// Local evaluation downloads the flag rules when the client starts and
// evaluates them in-process. Use [WithLocalConfig] to select it.
// See https://amplitude.com/docs/feature-experiment/local-evaluation for details.
//
// # Configuration from the environment
//
// [LoadEnvConfig] reads AMPLITUDE_EXPERIMENT_* variables (and an optional
// config file) and [EnvConfig.Options] turns them into options, including a
// logger built with [NewLogger].
//
// # OpenFeature
//
// [Provider] is an OpenFeature provider over a bridge. Its evaluations read
// the cached variants; its Init fetches for the identity in the evaluation
// context. Payloads are interpreted by the evaluation method called:
//
//   - [Provider.BooleanEvaluation]: a JSON boolean, or true for any variant but "off"
//   - [Provider.StringEvaluation]: a JSON string, or the variant value
//   - [Provider.IntEvaluation]: a JSON number (42) or string ("42")
//   - [Provider.FloatEvaluation]: a JSON number (3.14)
//   - [Provider.ObjectEvaluation]: any JSON value
//
// The "off" variant (user not in the rollout) resolves to the default value.
// Evaluation context keys are mapped to Amplitude user fields with
// [DefaultKeyMap], which can be replaced with [WithKeyMap]; unknown keys
// become user properties.
package amplitude
