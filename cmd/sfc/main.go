// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/platformbuilds/sfc/internal/collector"
	"github.com/platformbuilds/sfc/internal/config"
	"github.com/platformbuilds/sfc/internal/logger"
	"github.com/platformbuilds/sfc/internal/otelexport"
	"github.com/platformbuilds/sfc/internal/scheduler"
	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sink"
	"github.com/platformbuilds/sfc/internal/version"
)

// Process exit codes besides the fatal collector codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// identityTimeout bounds the startup calls to the cluster.
const identityTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr, prompter: config.TerminalPrompter()})
	stop()
	os.Exit(code)
}

type env struct {
	stdout   io.Writer
	stderr   io.Writer
	prompter config.Prompter
}

func run(ctx context.Context, args []string, e env) int {
	opts, err := config.ParseArgs(args)
	if err != nil {
		if config.IsHelp(err) {
			return exitOK
		}
		return exitUsage
	}
	if opts.Version {
		fmt.Fprintf(e.stdout, "SFC Version: %s (%s/%s)\n", version.Version(), runtime.GOOS, runtime.GOARCH)
		return exitOK
	}

	cfg, err := opts.Resolve()
	if err != nil {
		fmt.Fprintf(e.stderr, "config: %v\n", err)
		return exitFailed
	}
	if err := e.prompter.Fill(&cfg.Cluster); err != nil {
		fmt.Fprintf(e.stderr, "credentials: %v\n", err)
		return exitFailed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(e.stderr, "config: %v\n", err)
		return exitFailed
	}

	exp, err := otelexport.New(cfg.OTelConfig(), slog.New(slog.NewTextHandler(e.stderr, nil)))
	if err != nil {
		fmt.Fprintf(e.stderr, "otel: %v\n", err)
		return exitFailed
	}
	if err := exp.Start(ctx); err != nil {
		fmt.Fprintf(e.stderr, "otel: %v\n", err)
		return exitFailed
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exp.Shutdown(shutdownCtx)
	}()
	exp.Install()

	logOpts := logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File, Output: e.stderr}
	if lp := exp.LoggerProvider(); lp != nil {
		logOpts.Provider = lp
	}
	log, closer, err := logger.New(logOpts)
	if err != nil {
		fmt.Fprintf(e.stderr, "logger: %v\n", err)
		return exitFailed
	}
	defer closer.Close()
	slog.SetDefault(log)

	log.Info("sfc starting", "version", version.Version(), "commit", version.Commit(),
		"mvip", cfg.Cluster.MVIP, "sink", cfg.Sink.Type,
		"high", cfg.Tiers.High, "medium", cfg.Tiers.Medium, "low", cfg.Tiers.Low,
		"experimental", cfg.Tiers.Experimental)

	metrics := selftelemetry.NewMetrics(cfg.SelfTelemetry.Namespace)
	if cfg.SelfTelemetry.Listen != "" {
		go func() {
			if err := selftelemetry.Serve(ctx, cfg.SelfTelemetry.Listen, metrics, log); err != nil {
				log.Error("self-telemetry HTTP server failed", "error", err)
			}
		}()
	}

	if err := collector.ValidateSchemas(); err != nil {
		return fatal(log, err)
	}

	cluster, err := resolveCluster(ctx, cfg, log)
	if err != nil {
		var apiErr *sfapi.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			log.Log(ctx, logger.LevelCritical, "cluster rejected the credentials",
				"mvip", cfg.Cluster.MVIP, "username", cfg.Cluster.Username)
			return exitFailed
		}
		log.Log(ctx, logger.LevelCritical, "cannot reach cluster", "mvip", cfg.Cluster.MVIP, "error", err)
		return exitFailed
	}

	s, err := sink.New(cfg.SinkConfig(), log, metrics)
	if err != nil {
		log.Log(ctx, logger.LevelCritical, "cannot build sink", "error", err)
		return exitFailed
	}
	defer s.Close()
	if err := s.EnsureDatabase(ctx, cfg.Sink.Database); err != nil {
		log.Error("database bootstrap failed", "database", cfg.Sink.Database, "error", err)
	}

	tiers, err := scheduler.Tiers(cfg.Intervals(), cfg.Tiers.Experimental)
	if err != nil {
		log.Log(ctx, logger.LevelCritical, "invalid tier intervals", "error", err)
		return exitFailed
	}
	clusterCfg := cfg.SFAPI()
	sched, err := scheduler.New(scheduler.Config{
		Cluster: cluster,
		NewClient: func(timeout time.Duration) (*sfapi.Client, error) {
			c := clusterCfg
			c.Timeout = timeout
			return sfapi.NewClient(c, log)
		},
		Sink:      s,
		Metrics:   metrics,
		ChunkSize: cfg.ChunkSize,
	}, tiers, log)
	if err != nil {
		log.Log(ctx, logger.LevelCritical, "cannot build scheduler", "error", err)
		return exitFailed
	}
	metrics.SetHealthSource(sched.Report)

	metrics.SetReady(true)
	err = sched.Run(ctx)
	metrics.SetReady(false)
	if err != nil {
		return fatal(log, err)
	}
	log.Info("sfc stopped")
	return exitOK
}

// resolveCluster reads the cluster name and warns when the cluster speaks
// an older API than the endpoint in use.
func resolveCluster(ctx context.Context, cfg *config.Config, log *slog.Logger) (string, error) {
	c := cfg.SFAPI()
	if c.Timeout == 0 {
		c.Timeout = identityTimeout
	}
	client, err := sfapi.NewClient(c, log)
	if err != nil {
		return "", err
	}
	defer client.Close()

	info, err := client.GetClusterInfo(ctx)
	if err != nil {
		return "", err
	}
	if info.Name == "" {
		return "", errors.New("cluster reported an empty name")
	}
	log.Info("cluster identified", "cluster", info.Name, "mvip", info.MVIP, "svip", info.SVIP)

	ver, err := client.GetClusterVersionInfo(ctx)
	if err != nil {
		log.Warn("cannot read cluster version", "error", err)
		return info.Name, nil
	}
	cmp, err := sfapi.CompareAPIVersion(ver.ClusterAPIVersion, c.APIVersion)
	switch {
	case err != nil:
		log.Warn("cannot compare API versions", "error", err)
	case cmp < 0:
		log.Warn("cluster API is older than the endpoint version",
			"cluster_api", ver.ClusterAPIVersion, "endpoint_api", c.APIVersion)
	default:
		log.Debug("cluster API version", "cluster_api", ver.ClusterAPIVersion, "endpoint_api", c.APIVersion)
	}
	return info.Name, nil
}

func fatal(log *slog.Logger, err error) int {
	if f, ok := collector.AsFatal(err); ok {
		log.Log(context.Background(), logger.LevelCritical, "stopping on fatal error", "error", err, "exit_code", f.ExitCode())
		return f.ExitCode()
	}
	log.Error("stopped with error", "error", err)
	return exitFailed
}
