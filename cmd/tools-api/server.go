package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/glueops/tools-api/pkg/api"
	"github.com/glueops/tools-api/pkg/auth"
	"github.com/glueops/tools-api/pkg/awsaccount"
	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/exitnode"
	"github.com/glueops/tools-api/pkg/github"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/storage"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/glueops/tools-api/pkg/workflows"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServerCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the tools-api server",
		Long:  `Start the HTTP API server and the workflow run tracker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), log, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file (defaults and environment only when empty)")

	return cmd
}

func runServer(ctx context.Context, log *logrus.Logger, configPath string) error {
	// Load configuration.
	log.WithField("path", configPath).Info("Loading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Values baked in at link time win over the environment.
	if Version != "dev" {
		cfg.Build.Version = Version
		cfg.Build.CommitSHA = CommitSHA
		cfg.Build.BuildTimestamp = BuildTimestamp
	}

	log.Info("Configuration loaded:\n" + cfg.String())

	// Create store.
	st, err := newStore(log, cfg)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}

	defer st.Stop()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Create metrics.
	m := metrics.New(prometheus.DefaultRegisterer)
	m.SetBuildInfo(cfg.Build.Version, cfg.Build.CommitSHA, cfg.Build.BuildTimestamp)

	// Create GitHub client.
	ghClient, err := github.NewClient(log, cfg.GitHub.Token, cfg.GitHub.BaseURL)
	if err != nil {
		return err
	}

	if err := ghClient.Start(ctx); err != nil {
		return err
	}

	defer ghClient.Stop()

	dispatcher := workflows.NewDispatcher(log, &cfg.GitHub, ghClient, st, m)

	// Track dispatched runs to completion.
	tracker := workflows.NewTracker(log, st, ghClient, m, cfg.GitHub.TrackingInterval, cfg.GitHub.RunTimeout)

	if err := tracker.Start(ctx); err != nil {
		return err
	}

	defer tracker.Stop()

	janitor := workflows.NewJanitor(log, st, cfg.GitHub.RetentionDays, cfg.GitHub.CleanupInterval)

	if err := janitor.Start(ctx); err != nil {
		return err
	}

	defer janitor.Stop()

	// Exit nodes and buckets share one lock per tenant.
	locker := tenant.NewLocker()

	provider, err := newExitNodeProvider(ctx, log, cfg)
	if err != nil {
		return err
	}

	exitNodes := exitnode.NewManager(log, provider, exitnode.OptionsFromConfig(cfg), locker, m)

	buckets := storage.NewManager(log,
		storage.MinioFactory(cfg.ObjectStorageEndpoint,
			cfg.ObjectStorage.AccessKeyID, cfg.ObjectStorage.SecretAccessKey, cfg.ObjectStorageSSL()),
		storage.Options{
			DefaultRegion:   cfg.ObjectStorage.DefaultRegion,
			Regions:         cfg.ObjectStorage.Regions,
			SuffixLength:    cfg.ObjectStorage.SuffixLength,
			PurgeObjects:    cfg.ObjectStorage.PurgeObjects,
			LegacyMatch:     cfg.ObjectStorage.LegacySubstringMatch,
			AccessKeyID:     cfg.ObjectStorage.AccessKeyID,
			SecretAccessKey: cfg.ObjectStorage.SecretAccessKey,
			Endpoint:        cfg.ObjectStorageEndpoint,
		},
		locker, m)

	minter, err := awsaccount.NewMinterFromConfig(ctx, log, cfg.AWS, m)
	if err != nil {
		return err
	}

	// Create and start API server.
	srv := api.NewServer(log, cfg, api.Services{
		ExitNodes: exitNodes,
		Buckets:   buckets,
		Accounts:  minter,
		Workflows: dispatcher,
		Store:     st,
		Auth:      auth.NewService(log, cfg.Auth),
		Metrics:   m,
		Gatherer:  prometheus.DefaultGatherer,
	})

	if err := srv.Start(ctx); err != nil {
		return err
	}

	defer srv.Stop()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")

	return nil
}

func newExitNodeProvider(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) (exitnode.Provider, error) {
	if cfg.ExitNodes.Provider == config.ProviderLightsail {
		return exitnode.NewLightsailProvider(ctx, log, cfg.Lightsail)
	}

	return exitnode.NewHetznerProvider(log, cfg.Hetzner, cfg.Build.Version), nil
}
