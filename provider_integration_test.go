package amplitude_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/amplitude/experiment-go-server/pkg/experiment/local"
	"github.com/amplitude/experiment-go-server/pkg/experiment/remote"
	amplitude "github.com/open-feature/go-sdk-contrib/bridges/amplitude"
	of "github.com/open-feature/go-sdk/openfeature"
	"github.com/stretchr/testify/suite"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// testFlagName is the flag the recordings were made against. In the
// Amplitude project it is targeted by user ID:
//
//   - expect-enabled: variant "on" with payload true
//   - expect-string: payload "foo"
//   - expect-int: payload 42
//   - expect-float: payload 12.34
//   - expect-object: payload {"a":"A","b":"B"}
const testFlagName = "test-feature-flag"

// reNonWordOnly is a regular expression that matches any non-word characters.
var reNonWordOnly = regexp.MustCompile(`\W+`)

// IntegrationTestSuite runs the bridge against Amplitude through go-vcr.
// With AMPLITUDE_SDK_KEY set it records new cassettes; otherwise it replays
// the cassettes under testdata and skips tests that have none.
type IntegrationTestSuite struct {
	suite.Suite
	deploymentKey     string
	recording         bool
	recorder          *recorder.Recorder
	originalTransport http.RoundTripper
}

// TestIntegration runs the integration test suite.
func TestIntegration(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

// SetupSuite is called once before all tests in the suite.
func (s *IntegrationTestSuite) SetupSuite() {
	s.deploymentKey = os.Getenv("AMPLITUDE_SDK_KEY")
	s.recording = s.deploymentKey != ""

	if s.recording {
		s.T().Log("Recording mode: AMPLITUDE_SDK_KEY is set")
	} else {
		s.T().Log("Replay mode: using VCR cassettes")
		s.deploymentKey = "server-replay-placeholder-key"
	}
}

// setupVCR configures go-vcr for recording or replaying HTTP interactions.
func (s *IntegrationTestSuite) setupVCR(testName string) {
	cassetteName := filepath.Join("testdata", reNonWordOnly.ReplaceAllString(testName, "_"))

	mode := recorder.ModeReplayOnly
	if s.recording {
		mode = recorder.ModeRecordOnly
		s.Require().NoError(os.MkdirAll(filepath.Dir(cassetteName), 0o755))
	} else if _, statErr := os.Stat(cassetteName + ".yaml"); errors.Is(statErr, os.ErrNotExist) {
		s.T().Skipf("no cassette recorded at %s.yaml; set AMPLITUDE_SDK_KEY to record one", cassetteName)
	}

	removeAuthHook := func(i *cassette.Interaction) error {
		delete(i.Request.Headers, "Authorization")
		return nil
	}

	customMatcher := func(req *http.Request, i cassette.Request) bool {
		expectedURL, _ := url.Parse(i.URL)
		if expectedURL == nil {
			return false
		}
		// Basic matching: method, path, query
		if i.Method != req.Method ||
			expectedURL.Path != req.URL.Path ||
			expectedURL.RawQuery != req.URL.RawQuery {
			return false
		}
		// Remote evaluation sends the user in this header; it must match too.
		recordedUserHeader := ""
		if vals, ok := i.Headers["X-Amp-Exp-User"]; ok && len(vals) > 0 {
			recordedUserHeader = vals[0]
		}
		return recordedUserHeader == req.Header.Get("X-Amp-Exp-User")
	}

	r, recorderErr := recorder.New(
		cassetteName,
		recorder.WithMode(mode),
		recorder.WithSkipRequestLatency(true),
		recorder.WithHook(removeAuthHook, recorder.BeforeSaveHook),
		recorder.WithMatcher(customMatcher),
	)
	s.Require().NoError(recorderErr)

	s.originalTransport = http.DefaultTransport
	http.DefaultTransport = r
	s.recorder = r
}

// tearDownVCR restores the original transport and stops the recorder.
func (s *IntegrationTestSuite) tearDownVCR() {
	if s.originalTransport != nil {
		http.DefaultTransport = s.originalTransport
		s.originalTransport = nil
	}
	if s.recorder != nil {
		s.Require().NoError(s.recorder.Stop())
		s.recorder = nil
	}
}

// newBridge creates and initializes a bridge delivering outcomes on a channel.
func (s *IntegrationTestSuite) newBridge(options ...amplitude.Option) (*amplitude.Bridge, *amplitude.ChannelDispatcher) {
	dispatcher := amplitude.NewChannelDispatcher(16)
	options = append(options,
		amplitude.WithDispatcher(dispatcher),
		amplitude.WithCallbackTarget("AmplitudeExperimentManager"),
	)
	bridge := amplitude.New(options...)
	s.Require().NoError(bridge.Initialize(s.deploymentKey, "integration"))
	return bridge, dispatcher
}

func (s *IntegrationTestSuite) closeBridge(bridge *amplitude.Bridge) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.NoError(bridge.Close(ctx))
}

// TestLocalEvaluation tests the bridge with local evaluation.
func (s *IntegrationTestSuite) TestLocalEvaluation() {
	s.setupVCR(s.T().Name())
	defer s.tearDownVCR()

	bridge, _ := s.newBridge(amplitude.WithLocalConfig(local.Config{}))
	defer s.closeBridge(bridge)

	s.runEvaluationTests(bridge)
}

// TestRemoteEvaluation tests the bridge with remote evaluation.
func (s *IntegrationTestSuite) TestRemoteEvaluation() {
	s.setupVCR(s.T().Name())
	defer s.tearDownVCR()

	bridge, _ := s.newBridge(amplitude.WithRemoteConfig(remote.Config{}))
	defer s.closeBridge(bridge)

	s.runEvaluationTests(bridge)
}

// TestFetchCallback checks the host-facing path: Fetch, callback, GetVariant.
func (s *IntegrationTestSuite) TestFetchCallback() {
	s.setupVCR(s.T().Name())
	defer s.tearDownVCR()

	bridge, dispatcher := s.newBridge(amplitude.WithRemoteConfig(remote.Config{}))
	defer s.closeBridge(bridge)

	requestID := bridge.Fetch("expect-enabled", "", `{"source":"integration"}`)

	select {
	case delivery := <-dispatcher.Deliveries():
		s.Equal(requestID, delivery.Outcome.RequestID)
		s.Equal(amplitude.MethodFetchSuccess, delivery.Outcome.Method(), delivery.Outcome.Message())
		s.Equal("AmplitudeExperimentManager", delivery.Target)
	case <-time.After(10 * time.Second):
		s.FailNow("no fetch outcome delivered")
	}

	s.JSONEq(`{"key":"on","value":"on","payload":true}`, bridge.GetVariantJSON(testFlagName))
}

// runEvaluationTests fetches each test user and evaluates the flag through
// an OpenFeature provider over the bridge.
func (s *IntegrationTestSuite) runEvaluationTests(bridge *amplitude.Bridge) {
	provider := amplitude.NewProvider(bridge)

	fetch := func(userID string) {
		s.Require().NoError(provider.Init(of.NewEvaluationContext(userID, nil)))
	}

	s.Run("BooleanEvaluation", func() {
		fetch("expect-enabled")
		result := provider.BooleanEvaluation(context.Background(), testFlagName, false, of.FlattenedContext{})
		s.Equal(of.ResolutionError{}, result.ResolutionError, "expected no resolution error")
		s.True(result.Value)
	})

	s.Run("StringEvaluation", func() {
		fetch("expect-string")
		result := provider.StringEvaluation(context.Background(), testFlagName, "default", of.FlattenedContext{})
		s.Equal(of.ResolutionError{}, result.ResolutionError, "expected no resolution error")
		s.Equal("foo", result.Value)
	})

	s.Run("IntEvaluation", func() {
		fetch("expect-int")
		result := provider.IntEvaluation(context.Background(), testFlagName, 0, of.FlattenedContext{})
		s.Equal(of.ResolutionError{}, result.ResolutionError, "expected no resolution error")
		s.Equal(int64(42), result.Value)
	})

	s.Run("FloatEvaluation", func() {
		fetch("expect-float")
		result := provider.FloatEvaluation(context.Background(), testFlagName, 0.0, of.FlattenedContext{})
		s.Equal(of.ResolutionError{}, result.ResolutionError, "expected no resolution error")
		s.Equal(12.34, result.Value)
	})

	s.Run("ObjectEvaluation", func() {
		fetch("expect-object")
		result := provider.ObjectEvaluation(context.Background(), testFlagName, nil, of.FlattenedContext{})
		s.Equal(of.ResolutionError{}, result.ResolutionError, "expected no resolution error")
		s.Equal(map[string]any{"a": "A", "b": "B"}, result.Value)
	})

	s.Run("UnknownFlag", func() {
		result := provider.BooleanEvaluation(context.Background(), "flag-that-does-not-exist", true, of.FlattenedContext{})
		s.Equal(of.ErrorReason, result.Reason)
		s.True(result.Value)
	})
}

// TestNotInitialized tests that the bridge answers with sentinels before Initialize.
func (s *IntegrationTestSuite) TestNotInitialized() {
	bridge := amplitude.New()
	defer s.closeBridge(bridge)

	_, err := bridge.GetVariant(testFlagName)
	s.ErrorIs(err, amplitude.ErrNotInitialized)

	provider := amplitude.NewProvider(bridge)
	s.ErrorIs(provider.Init(of.EvaluationContext{}), amplitude.ErrNotInitialized)

	result := provider.BooleanEvaluation(context.Background(), testFlagName, false, of.FlattenedContext{})
	s.NotEmpty(result.ResolutionError)
	s.False(result.Value)
}
