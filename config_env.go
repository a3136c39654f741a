package amplitude

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amplitude/experiment-go-server/pkg/experiment/local"
	"github.com/amplitude/experiment-go-server/pkg/experiment/remote"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by [LoadEnvConfig].
const EnvPrefix = "AMPLITUDE_EXPERIMENT"

// Evaluation modes.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// EnvConfig is the process configuration of a bridge host, read from the
// environment and an optional config file:
//
//   - AMPLITUDE_EXPERIMENT_MODE: "remote" (default) or "local".
//   - AMPLITUDE_EXPERIMENT_SERVER_URL: evaluation server override.
//   - AMPLITUDE_EXPERIMENT_DEBUG: enable Amplitude SDK debug logging.
//   - AMPLITUDE_EXPERIMENT_FETCH_TIMEOUT: remote fetch timeout (e.g. "10s").
//   - AMPLITUDE_EXPERIMENT_POLL_INTERVAL: local flag config poll interval.
//   - AMPLITUDE_EXPERIMENT_CACHE_TTL: remote evaluation cache TTL; 0 disables it.
//   - AMPLITUDE_EXPERIMENT_LOG_LEVEL: "debug", "info" (default), "warn", "error".
//   - AMPLITUDE_EXPERIMENT_LOG_FORMAT: "json" (default) or "console".
//   - AMPLITUDE_EXPERIMENT_CALLBACK_TARGET: initial callback target.
//
// Durations left unset (or zero) use the Amplitude SDK defaults.
type EnvConfig struct {
	Mode           string        `mapstructure:"mode"`
	ServerURL      string        `mapstructure:"server_url"`
	Debug          bool          `mapstructure:"debug"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	CallbackTarget string        `mapstructure:"callback_target"`
}

// LoadEnvConfig reads an [EnvConfig]. When configFile is not empty it is read
// first (any format viper understands); environment variables override it.
func LoadEnvConfig(configFile string) (EnvConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", ModeRemote)
	v.SetDefault("server_url", "")
	v.SetDefault("debug", false)
	v.SetDefault("fetch_timeout", "0s")
	v.SetDefault("poll_interval", "0s")
	v.SetDefault("cache_ttl", "0s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", LogFormatJSON)
	v.SetDefault("callback_target", "")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return EnvConfig{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := EnvConfig{
		Mode:           strings.ToLower(strings.TrimSpace(v.GetString("mode"))),
		ServerURL:      strings.TrimSpace(v.GetString("server_url")),
		Debug:          v.GetBool("debug"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		CallbackTarget: strings.TrimSpace(v.GetString("callback_target")),
	}
	if cfg.Mode != ModeRemote && cfg.Mode != ModeLocal {
		return EnvConfig{}, fmt.Errorf("%s_MODE must be %q or %q, got %q", EnvPrefix, ModeRemote, ModeLocal, cfg.Mode)
	}

	var err error
	if cfg.FetchTimeout, err = envDuration(v, "fetch_timeout"); err != nil {
		return EnvConfig{}, err
	}
	if cfg.PollInterval, err = envDuration(v, "poll_interval"); err != nil {
		return EnvConfig{}, err
	}
	if cfg.CacheTTL, err = envDuration(v, "cache_ttl"); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// envDuration parses key strictly; viper's own GetDuration turns bad input into 0.
func envDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s_%s: %w", EnvPrefix, strings.ToUpper(key), err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s_%s must be >= 0", EnvPrefix, strings.ToUpper(key))
	}
	return d, nil
}

// Options converts the configuration into bridge options. Logs are written
// to logOutput (stderr when nil).
func (c EnvConfig) Options(logOutput io.Writer) []Option {
	options := []Option{
		WithLogger(NewLogger(c.LogLevel, c.LogFormat, logOutput)),
	}
	if c.CallbackTarget != "" {
		options = append(options, WithCallbackTarget(c.CallbackTarget))
	}

	switch c.Mode {
	case ModeLocal:
		options = append(options, WithLocalConfig(local.Config{
			Debug:                    c.Debug,
			ServerUrl:                c.ServerURL,
			FlagConfigPollerInterval: c.PollInterval,
		}))
	default:
		options = append(options, WithRemoteConfig(remote.Config{
			Debug:        c.Debug,
			ServerUrl:    c.ServerURL,
			FetchTimeout: c.FetchTimeout,
		}))
		if c.CacheTTL > 0 {
			options = append(options, WithRemoteEvaluationCache(NewTTLCache(c.CacheTTL)))
		}
	}
	return options
}
