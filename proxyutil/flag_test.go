package proxyutil_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevindweb/metricdeviation-proxy/proxyutil"
	"github.com/kevindweb/metricdeviation-proxy/squash"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		proxyutil.EnvSquashHost,
		proxyutil.EnvSquashDataset,
		proxyutil.EnvListenAddress,
		proxyutil.EnvInternalListenAddress,
		proxyutil.EnvLogLevel,
		proxyutil.EnvUpstreamTimeout,
		proxyutil.EnvAllowedOrigins,
		proxyutil.EnvAuthRetries,
	} {
		t.Setenv(key, "")
	}
}

func TestParseConfig(t *testing.T) {
	for _, tt := range []struct {
		name    string
		args    []string
		env     map[string]string
		wantErr bool
		cfg     proxyutil.Config
	}{
		{
			name: "default config flags",
			args: []string{"test-program"},
			cfg: proxyutil.Config{
				InsecureListenAddress: proxyutil.DefaultListenAddress,
				Upstream:              "https://squash.lsst.codes",
				Dataset:               "cfht",
				SignInPath:            squash.DefaultSignInPath,
				LogLevel:              "info",
				ReadTimeout:           time.Minute,
				WriteTimeout:          time.Minute * 2,
				UpstreamTimeout:       squash.DefaultUpstreamTimeout,
				AuthRetries:           squash.DefaultAuthRetries,
			},
		},
		{
			name: "defaults from environment",
			args: []string{"test-program"},
			env: map[string]string{
				proxyutil.EnvSquashHost:    "squash-sandbox.lsst.codes",
				proxyutil.EnvSquashDataset: "hsc",
			},
			cfg: proxyutil.Config{
				InsecureListenAddress: proxyutil.DefaultListenAddress,
				Upstream:              "https://squash-sandbox.lsst.codes",
				Dataset:               "hsc",
				SignInPath:            squash.DefaultSignInPath,
				LogLevel:              "info",
				ReadTimeout:           time.Minute,
				WriteTimeout:          time.Minute * 2,
				UpstreamTimeout:       squash.DefaultUpstreamTimeout,
				AuthRetries:           squash.DefaultAuthRetries,
			},
		},
		{
			name: "environment only",
			args: []string{"test-program"},
			env: map[string]string{
				proxyutil.EnvListenAddress:         ":5001",
				proxyutil.EnvInternalListenAddress: ":5002",
				proxyutil.EnvLogLevel:              "debug",
				proxyutil.EnvUpstreamTimeout:       "45s",
				proxyutil.EnvAllowedOrigins:        "https://a.example.com",
				proxyutil.EnvAuthRetries:           "5",
			},
			cfg: proxyutil.Config{
				InsecureListenAddress: ":5001",
				InternalListenAddress: ":5002",
				Upstream:              "https://squash.lsst.codes",
				Dataset:               "cfht",
				SignInPath:            squash.DefaultSignInPath,
				AllowedOrigins:        []string{"https://a.example.com"},
				LogLevel:              "debug",
				ReadTimeout:           time.Minute,
				WriteTimeout:          time.Minute * 2,
				UpstreamTimeout:       45 * time.Second,
				AuthRetries:           5,
			},
		},
		{
			name: "flags override environment",
			args: []string{
				"test-program",
				"--insecure-listen-address", ":8080",
				"--log-level", "warn",
				"--auth-retries", "1",
			},
			env: map[string]string{
				proxyutil.EnvListenAddress:         ":5001",
				proxyutil.EnvInternalListenAddress: ":5002",
				proxyutil.EnvLogLevel:              "debug",
				proxyutil.EnvAuthRetries:           "5",
			},
			cfg: proxyutil.Config{
				InsecureListenAddress: ":8080",
				InternalListenAddress: ":5002",
				Upstream:              "https://squash.lsst.codes",
				Dataset:               "cfht",
				SignInPath:            squash.DefaultSignInPath,
				LogLevel:              "warn",
				ReadTimeout:           time.Minute,
				WriteTimeout:          time.Minute * 2,
				UpstreamTimeout:       squash.DefaultUpstreamTimeout,
				AuthRetries:           1,
			},
		},
		{
			name:    "invalid environment",
			args:    []string{"test-program", "--auth-retries", "1"},
			env:     map[string]string{proxyutil.EnvAuthRetries: "twice"},
			wantErr: true,
		},
		{
			name: "comprehensive config flags",
			args: []string{
				"test-program",
				"--upstream", "http://example.com/squash",
				"--dataset", "decam",
				"--insecure-listen-address", ":8080",
				"--internal-listen-address", ":9090",
				"--sign-in-path", "/auth/sign_in",
				"--allowed-origins", "https://a.example.com,https://b.example.com",
				"--log-level", "debug",
				"--proxy-read-timeout", "2m0s",
				"--proxy-write-timeout", "3m0s",
				"--upstream-timeout", "1d",
				"--auth-retries", "0",
			},
			cfg: proxyutil.Config{
				InsecureListenAddress: ":8080",
				InternalListenAddress: ":9090",
				Upstream:              "http://example.com/squash",
				Dataset:               "decam",
				SignInPath:            "/auth/sign_in",
				AllowedOrigins:        []string{"https://a.example.com", "https://b.example.com"},
				LogLevel:              "debug",
				ReadTimeout:           2 * time.Minute,
				WriteTimeout:          3 * time.Minute,
				UpstreamTimeout:       24 * time.Hour,
				AuthRetries:           0,
			},
		},
		{
			name:    "invalid read timeout",
			args:    []string{"test-program", "--proxy-read-timeout", "soon"},
			wantErr: true,
		},
		{
			name:    "invalid upstream timeout",
			args:    []string{"test-program", "--upstream-timeout", "1x"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"test-program", "--enable-jitter"},
			wantErr: true,
		},
		{
			name: "simple config file",
			args: []string{
				"test-program",
				"--config-file", "testdata/simple.yaml",
			},
			cfg: proxyutil.Config{
				Upstream:              "http://localhost:9095",
				Dataset:               "hsc",
				InsecureListenAddress: "0.0.0.0:7777",
				InternalListenAddress: "0.0.0.0:7776",
				SignInPath:            squash.DefaultSignInPath,
				AllowedOrigins:        []string{"https://chronograf.lsst.codes"},
				LogLevel:              "debug",
				ReadTimeout:           5 * time.Second,
				WriteTimeout:          5 * time.Second,
				UpstreamTimeout:       10 * time.Second,
				AuthRetries:           4,
			},
		},
		{
			name: "invalid config file",
			args: []string{
				"test-program",
				"--config-file", "testdata/invalid.yaml",
			},
			wantErr: true,
		},
		{
			name: "config file does not exist",
			args: []string{
				"test-program",
				"--config-file", "testdata/nonexistent.yaml",
			},
			wantErr: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()
			os.Args = tt.args

			cfg, err := proxyutil.ParseConfigFlags()
			require.Equal(t, tt.wantErr, err != nil)
			if tt.wantErr {
				return
			}
			require.Equal(t, tt.cfg, cfg)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestParseConfigEnvironment(t *testing.T) {
	for _, tt := range []struct {
		name    string
		env     map[string]string
		wantErr bool
		cfg     proxyutil.Config
	}{
		{
			name: "environment overrides",
			env: map[string]string{
				proxyutil.EnvSquashHost:            "http://localhost:8000",
				proxyutil.EnvSquashDataset:         "hsc",
				proxyutil.EnvListenAddress:         ":5001",
				proxyutil.EnvInternalListenAddress: ":5002",
				proxyutil.EnvLogLevel:              "warn",
				proxyutil.EnvUpstreamTimeout:       "45s",
				proxyutil.EnvAllowedOrigins:        " https://a.example.com, ,https://b.example.com",
				proxyutil.EnvAuthRetries:           "5",
			},
			cfg: proxyutil.Config{
				InsecureListenAddress: ":5001",
				InternalListenAddress: ":5002",
				Upstream:              "http://localhost:8000",
				Dataset:               "hsc",
				SignInPath:            squash.DefaultSignInPath,
				AllowedOrigins:        []string{"https://a.example.com", "https://b.example.com"},
				LogLevel:              "warn",
				ReadTimeout:           proxyutil.DefaultReadTimeout,
				WriteTimeout:          proxyutil.DefaultWriteTimeout,
				UpstreamTimeout:       45 * time.Second,
				AuthRetries:           5,
			},
		},
		{
			name:    "invalid retries",
			env:     map[string]string{proxyutil.EnvAuthRetries: "twice"},
			wantErr: true,
		},
		{
			name:    "invalid timeout",
			env:     map[string]string{proxyutil.EnvUpstreamTimeout: "later"},
			wantErr: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := proxyutil.ParseConfigEnvironment()
			require.Equal(t, tt.wantErr, err != nil)
			if tt.wantErr {
				return
			}
			require.Equal(t, tt.cfg, cfg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() proxyutil.Config {
		return proxyutil.Config{
			InsecureListenAddress: ":5000",
			Upstream:              "https://squash.lsst.codes",
			Dataset:               "cfht",
			SignInPath:            squash.DefaultSignInPath,
			LogLevel:              "info",
		}
	}

	for _, tt := range []struct {
		name   string
		mutate func(*proxyutil.Config)
		err    error
	}{
		{
			name:   "valid",
			mutate: func(*proxyutil.Config) {},
		},
		{
			name:   "missing dataset",
			mutate: func(c *proxyutil.Config) { c.Dataset = "" },
			err:    proxyutil.ErrDatasetRequired,
		},
		{
			name:   "missing listen address",
			mutate: func(c *proxyutil.Config) { c.InsecureListenAddress = "" },
			err:    proxyutil.ErrListenAddressRequired,
		},
		{
			name:   "relative sign in path",
			mutate: func(c *proxyutil.Config) { c.SignInPath = "oauth2/sign_in" },
			err:    proxyutil.ErrInvalidSignInPath,
		},
		{
			name:   "negative retries",
			mutate: func(c *proxyutil.Config) { c.AuthRetries = -1 },
			err:    proxyutil.ErrNegativeAuthRetries,
		},
		{
			name:   "negative timeout",
			mutate: func(c *proxyutil.Config) { c.UpstreamTimeout = -time.Second },
			err:    proxyutil.ErrNegativeTimeout,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}

	for _, tt := range []struct {
		name   string
		mutate func(*proxyutil.Config)
	}{
		{
			name:   "unsupported scheme",
			mutate: func(c *proxyutil.Config) { c.Upstream = "ftp://squash.lsst.codes" },
		},
		{
			name:   "unknown log level",
			mutate: func(c *proxyutil.Config) { c.LogLevel = "loud" },
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
