package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/kevindweb/metricdeviation-proxy/proxyutil"
	"github.com/kevindweb/metricdeviation-proxy/proxyutil/proxyhttp"
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newPublicServer serves the metric deviation routes
func newPublicServer(cfg proxyutil.Config, reg *prometheus.Registry, log *logrus.Entry) (*http.Server, error) {
	routes, err := proxyhttp.NewRoutes(cfg, reg, log)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Handler:      routes,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, nil
}

// newInternalServer exposes the proxy's own metrics
func newInternalServer(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{Handler: mux}
}

func addServer(g *run.Group, name, address string, srv *http.Server, log *logrus.Entry) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	log = log.WithField("server", name)
	g.Add(func() error {
		log.Infof("Listening on %v", l.Addr())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			return err
		}
		return nil
	}, func(error) {
		_ = srv.Close()
	})
	return nil
}

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := proxyutil.ParseConfigFlags()
	if err != nil {
		log.WithError(err).Fatal("failed parsing configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatalf("invalid log level: %s", cfg.LogLevel)
	}
	logrus.SetLevel(logLevel)

	undo, err := maxprocs.Set(maxprocs.Logger(log.Infof))
	defer undo()
	if err != nil {
		log.WithError(err).Warn("failed to set GOMAXPROCS")
	}

	reg := newRegistry()

	var g run.Group

	{
		srv, err := newPublicServer(cfg, reg, log)
		if err != nil {
			log.WithError(err).Fatal("failed to create routes")
		}

		if err := addServer(&g, "public", cfg.InsecureListenAddress, srv, log); err != nil {
			log.WithError(err).Fatal("failed to listen on insecure address")
		}
	}

	if cfg.InternalListenAddress != "" {
		srv := newInternalServer(reg)
		if err := addServer(&g, "internal", cfg.InternalListenAddress, srv, log); err != nil {
			log.WithError(err).Fatal("failed to listen on internal address")
		}
	}

	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		if !errors.As(err, &run.SignalError{}) {
			log.WithError(err).Error("server stopped")
			os.Exit(1)
		}
		log.Info("Caught signal; exiting gracefully...")
	}
}
