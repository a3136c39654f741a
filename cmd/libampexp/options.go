package main

import (
	"io"

	amplitude "github.com/open-feature/go-sdk-contrib/bridges/amplitude"
)

const (
	// defaultCallbackTarget is the game object the Unity integration
	// registers its callback handlers on.
	defaultCallbackTarget = "AmplitudeExperimentManager"

	// configFileEnv names an optional config file read before the environment.
	configFileEnv = amplitude.EnvPrefix + "_CONFIG_FILE"
)

// bridgeOptions builds the options of the process bridge from configFile and
// the environment. An invalid configuration is logged and the defaults are
// used instead, so the library still loads.
func bridgeOptions(configFile string, logOutput io.Writer, dispatcher amplitude.Dispatcher) []amplitude.Option {
	options := []amplitude.Option{
		amplitude.WithCallbackTarget(defaultCallbackTarget),
	}

	cfg, err := amplitude.LoadEnvConfig(configFile)
	if err != nil {
		logger := amplitude.NewLogger("info", amplitude.LogFormatJSON, logOutput)
		logger.Error().Err(err).Msg("invalid bridge configuration, using defaults")
		options = append(options, amplitude.WithLogger(logger))
	} else {
		options = append(options, cfg.Options(logOutput)...)
	}

	return append(options, amplitude.WithDispatcher(dispatcher))
}
