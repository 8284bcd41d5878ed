// Package proxyutil handles parsing logic for the metric deviation proxy config
package proxyutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kevindweb/metricdeviation-proxy/squash"
)

const (
	EnvSquashHost            = "SQUASH_HOST"
	EnvSquashDataset         = "SQUASH_DATASET"
	EnvListenAddress         = "LISTEN_ADDRESS"
	EnvInternalListenAddress = "INTERNAL_LISTEN_ADDRESS"
	EnvLogLevel              = "LOG_LEVEL"
	EnvUpstreamTimeout       = "UPSTREAM_TIMEOUT"
	EnvAllowedOrigins        = "ALLOWED_ORIGINS"
	EnvAuthRetries           = "AUTH_RETRIES"

	DefaultSquashHost    = "squash.lsst.codes"
	DefaultDataset       = "cfht"
	DefaultListenAddress = "0.0.0.0:5000"
	DefaultLogLevel      = "info"
	DefaultReadTimeout   = time.Minute
	DefaultWriteTimeout  = time.Minute * 2
)

var (
	ErrDatasetRequired       = errors.New("dataset must be non-empty")
	ErrListenAddressRequired = errors.New("insecure listen address must be non-empty")
	ErrNegativeAuthRetries   = errors.New("auth retries cannot be negative")
	ErrNegativeTimeout       = errors.New("timeouts cannot be negative")
	ErrInvalidSignInPath     = errors.New("sign in path must start with /")
)

type Config struct {
	// InsecureListenAddress is the address the proxy HTTP server should listen on
	InsecureListenAddress string `yaml:"insecure_listen_addr"`
	// InternalListenAddress is the address the HTTP server should listen on for metrics
	InternalListenAddress string `yaml:"internal_listen_addr"`
	// Upstream is the base URL of the SQuaSH dashboard
	Upstream string `yaml:"upstream"`
	// Dataset scopes every measurement query
	Dataset string `yaml:"dataset"`
	// SignInPath is the OAuth2 proxy endpoint on the upstream accepting username/password sign in
	SignInPath string `yaml:"sign_in_path"`
	// AllowedOrigins enables CORS for the listed origins when non-empty
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	ReadTimeout    time.Duration `yaml:"proxy_read_timeout"`
	WriteTimeout   time.Duration `yaml:"proxy_write_timeout"`
	// UpstreamTimeout bounds each upstream request, zero disables the timeout
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// AuthRetries is how many times a sign in failing at the transport level is retried
	AuthRetries int `yaml:"auth_retries"`
}

// Validate ensures the config can serve requests
func (c Config) Validate() error {
	var errs []error

	if _, err := squash.ParseUpstream(c.Upstream); err != nil {
		errs = append(errs, err)
	}

	if c.Dataset == "" {
		errs = append(errs, ErrDatasetRequired)
	}

	if c.InsecureListenAddress == "" {
		errs = append(errs, ErrListenAddressRequired)
	}

	if !strings.HasPrefix(c.SignInPath, "/") {
		errs = append(errs, ErrInvalidSignInPath)
	}

	if c.AuthRetries < 0 {
		errs = append(errs, ErrNegativeAuthRetries)
	}

	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.UpstreamTimeout < 0 {
		errs = append(errs, ErrNegativeTimeout)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// DefaultConfig returns the config used when nothing is set, honoring SQUASH_HOST and
// SQUASH_DATASET.
func DefaultConfig() Config {
	return Config{
		InsecureListenAddress: DefaultListenAddress,
		Upstream:              upstreamFromHost(getEnv(EnvSquashHost, DefaultSquashHost)),
		Dataset:               getEnv(EnvSquashDataset, DefaultDataset),
		SignInPath:            squash.DefaultSignInPath,
		LogLevel:              DefaultLogLevel,
		ReadTimeout:           DefaultReadTimeout,
		WriteTimeout:          DefaultWriteTimeout,
		UpstreamTimeout:       squash.DefaultUpstreamTimeout,
		AuthRetries:           squash.DefaultAuthRetries,
	}
}

// ParseConfigFlags reads the command line. Flags override the environment read by
// ParseConfigEnvironment, which overrides the defaults.
func ParseConfigFlags() (Config, error) {
	var (
		insecureListenAddress string
		internalListenAddress string
		upstream              string
		dataset               string
		signInPath            string
		allowedOrigins        []string
		logLevel              string
		readTimeout           string
		writeTimeout          string
		upstreamTimeout       string
		authRetries           int
		configFile            string
	)

	defaults, err := ParseConfigEnvironment()
	if err != nil {
		return Config{}, err
	}

	flagset := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flagset.StringVar(&configFile, "config-file", "", "Config file to initialize the proxy")
	flagset.StringVar(
		&insecureListenAddress, "insecure-listen-address", defaults.InsecureListenAddress,
		"The address the proxy HTTP server should listen on.",
	)
	flagset.StringVar(
		&internalListenAddress, "internal-listen-address", defaults.InternalListenAddress,
		"The address the internal HTTP server should listen on to expose metrics about itself.",
	)
	flagset.StringVar(
		&upstream, "upstream", defaults.Upstream,
		"The SQuaSH dashboard URL, defaults to https://$"+EnvSquashHost+".",
	)
	flagset.StringVar(
		&dataset, "dataset", defaults.Dataset,
		"The dataset measurements are queried for, defaults to $"+EnvSquashDataset+".",
	)
	flagset.StringVar(
		&signInPath, "sign-in-path", defaults.SignInPath,
		"Path of the upstream OAuth2 proxy endpoint accepting username and password.",
	)
	flagset.StringSliceVar(
		&allowedOrigins, "allowed-origins", defaults.AllowedOrigins,
		"Comma delimited list of origins allowed to make cross-origin requests.",
	)
	flagset.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level.")
	flagset.StringVar(
		&readTimeout, "proxy-read-timeout", defaults.ReadTimeout.String(),
		"HTTP read timeout duration",
	)
	flagset.StringVar(
		&writeTimeout, "proxy-write-timeout", defaults.WriteTimeout.String(),
		"HTTP write timeout duration",
	)
	flagset.StringVar(
		&upstreamTimeout, "upstream-timeout", defaults.UpstreamTimeout.String(),
		"Timeout of each upstream request, 0 disables it.",
	)
	flagset.IntVar(
		&authRetries, "auth-retries", defaults.AuthRetries,
		"How many times an upstream sign in failing at the transport level is retried.",
	)
	if err := flagset.Parse(os.Args[1:]); err != nil {
		return Config{}, err
	}

	if configFile != "" {
		return ParseConfigFile(configFile)
	}

	read, err := parseDuration(readTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing read timeout: %w", err)
	}

	write, err := parseDuration(writeTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing write timeout: %w", err)
	}

	upstreamDeadline, err := parseDuration(upstreamTimeout)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing upstream timeout: %w", err)
	}

	return Config{
		InsecureListenAddress: insecureListenAddress,
		InternalListenAddress: internalListenAddress,
		Upstream:              upstream,
		Dataset:               dataset,
		SignInPath:            signInPath,
		AllowedOrigins:        allowedOrigins,
		LogLevel:              logLevel,
		ReadTimeout:           read,
		WriteTimeout:          write,
		UpstreamTimeout:       upstreamDeadline,
		AuthRetries:           authRetries,
	}, nil
}

// ParseConfigEnvironment builds the config from the environment alone
func ParseConfigEnvironment() (Config, error) {
	cfg := DefaultConfig()

	cfg.InsecureListenAddress = getEnv(EnvListenAddress, cfg.InsecureListenAddress)
	cfg.InternalListenAddress = getEnv(EnvInternalListenAddress, cfg.InternalListenAddress)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.AllowedOrigins = parseList(os.Getenv(EnvAllowedOrigins))

	timeout, err := getDurationEnv(EnvUpstreamTimeout, cfg.UpstreamTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamTimeout = timeout

	retries, err := getIntEnv(EnvAuthRetries, cfg.AuthRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthRetries = retries

	return cfg, nil
}

func upstreamFromHost(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return i, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := parseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}

// parseDuration accepts Go durations as well as Prometheus ones such as 1d
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q to a valid duration", s)
	}
	return time.Duration(d), nil
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}

	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// ParseConfigFile decodes configFile on top of the environment
func ParseConfigFile(configFile string) (Config, error) {
	defaults, err := ParseConfigEnvironment()
	if err != nil {
		return Config{}, err
	}
	return ParseFile(configFile, defaults)
}

// ParseFile decodes a YAML file on top of defaults
func ParseFile[T any](configFile string, defaults T) (T, error) {
	cfg := defaults

	// nolint:gosec // accept configuration file as input
	file, err := os.Open(configFile)
	if err != nil {
		return cfg, fmt.Errorf("error opening config file: %v", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("error decoding YAML: %v", err)
	}

	return cfg, nil
}
