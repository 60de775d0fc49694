package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/metastore"
	"github.com/clusterops/telemetoor/pkg/metrics"
	"github.com/clusterops/telemetoor/pkg/region"
	"github.com/clusterops/telemetoor/pkg/runner"
	"github.com/clusterops/telemetoor/pkg/server"
	"github.com/clusterops/telemetoor/pkg/telemetry"
	"github.com/clusterops/telemetoor/pkg/upload"
)

var (
	buildNumber  int
	clientCommit string
	configCommit string
	agentCommit  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured test cases",
	Long:  `Run all configured test cases, recording phase metrics and metadata.`,
	RunE:  runTests,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&buildNumber, "build-number", 0,
		"CI build number stamped on metadata records (overrides config)")
	runCmd.Flags().StringVar(&clientCommit, "client-commit", "",
		"Client commit stamped on metadata records (overrides config)")
	runCmd.Flags().StringVar(&configCommit, "config-commit", "",
		"Config commit stamped on metadata records (overrides config)")
	runCmd.Flags().StringVar(&agentCommit, "agent-commit", "",
		"Agent commit stamped on metadata records (overrides config)")
}

func runTests(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	// Load configuration.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Merge CLI provenance overrides into config (CLI wins on conflict).
	if buildNumber != 0 {
		cfg.Telemetry.BuildNumber = buildNumber
	}

	if clientCommit != "" {
		cfg.Telemetry.ClientCommit = clientCommit
	}

	if configCommit != "" {
		cfg.Telemetry.ConfigCommit = configCommit
	}

	if agentCommit != "" {
		cfg.Telemetry.AgentCommit = agentCommit
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	// Create S3 uploader if configured.
	var resultsUploader upload.Uploader

	if cfg.Upload.S3.Enabled {
		resultsUploader, err = upload.NewS3Uploader(log, &cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		// Fail fast: verify S3 is reachable and writable before running tests.
		if err := resultsUploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 upload preflight check failed: %w", err)
		}

		log.Info("S3 upload preflight check passed")
	}

	// Create the per-region recorder provider.
	provider, err := newRecorderProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating recorder provider: %w", err)
	}

	defer provider.Stop()

	// Create runner.
	runnerCfg := &runner.Config{
		Workers:      cfg.Runner.Workers,
		ResultsDir:   cfg.Runner.ResultsDir,
		ResultsOwner: cfg.Runner.ResultsOwner,
		Tests:        cfg.Runner.Tests,
	}

	r := runner.NewRunner(log, runnerCfg, provider.recorderFor)

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("starting runner: %w", err)
	}

	defer func() {
		if err := r.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop runner")
		}
	}()

	// Start the status server if configured.
	status := &runStatus{state: "running", runDir: r.RunDir()}

	if cfg.Server.Enabled {
		srv := server.NewServer(log, &cfg.Server, provider.registry, status.snapshot)

		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting status server: %w", err)
		}

		defer func() {
			if err := srv.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop status server")
			}
		}()
	}

	// Run all configured test cases.
	summary, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("running tests: %w", err)
	}

	status.complete(summary)

	log.WithField("passed", summary.Passed).
		WithField("failed", summary.Failed).
		WithField("skipped", summary.Skipped).
		Info("Run completed")

	// Upload results after the run.
	if resultsUploader != nil {
		if err := resultsUploader.Upload(ctx, r.RunDir()); err != nil {
			log.WithError(err).Error("Failed to upload results")
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tests failed", summary.Failed, summary.TotalTests)
	}

	return nil
}

// runStatus tracks progress for the status endpoint.
type runStatus struct {
	mu      sync.Mutex
	state   string
	runDir  string
	summary *runner.RunSummary
}

func (s *runStatus) complete(summary *runner.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = "completed"
	s.summary = summary
}

func (s *runStatus) snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{
		"state":   s.state,
		"run_dir": s.runDir,
	}

	if s.summary != nil {
		out["summary"] = s.summary
	}

	return out
}

// recorderProvider builds one recorder per reporting region, sharing the
// Prometheus registry and any region-independent metadata store across all
// of them.
type recorderProvider struct {
	ctx      context.Context
	cfg      *config.Config
	registry *prometheus.Registry
	promSink metrics.Sink

	mu          sync.Mutex
	recorders   map[string]telemetry.Recorder
	sharedStore metastore.Store
	stores      []metastore.Store
}

func newRecorderProvider(ctx context.Context, cfg *config.Config) (*recorderProvider, error) {
	p := &recorderProvider{
		ctx:       ctx,
		cfg:       cfg,
		registry:  prometheus.NewRegistry(),
		recorders: make(map[string]telemetry.Recorder),
	}

	if cfg.Metrics.Prometheus.Enabled {
		p.promSink = metrics.NewPrometheusSink(log, p.registry)
	}

	// DynamoDB stores are bound to a reporting region and created lazily
	// per region; the SQL drivers share a single store.
	if cfg.Metadata.Driver != "dynamodb" {
		store, err := metastore.NewStore(log, &cfg.Metadata, "")
		if err != nil {
			return nil, fmt.Errorf("creating metadata store: %w", err)
		}

		if store != nil {
			if err := store.Start(ctx); err != nil {
				return nil, fmt.Errorf("starting metadata store: %w", err)
			}

			p.sharedStore = store
			p.stores = append(p.stores, store)
		}
	}

	return p, nil
}

// recorderFor returns the recorder publishing to the reporting region
// derived from testRegion, creating it on first use.
func (p *recorderProvider) recorderFor(testRegion string) telemetry.Recorder {
	reporting := region.Reporting(testRegion)

	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, ok := p.recorders[reporting]; ok {
		return rec
	}

	sinks := []metrics.Sink{metrics.NewLogSink(log)}

	if p.cfg.Metrics.CloudWatch.Enabled {
		sinks = append(sinks, metrics.NewCloudWatchSink(
			log, &p.cfg.Metrics.CloudWatch, reporting,
		))
	}

	if p.promSink != nil {
		sinks = append(sinks, p.promSink)
	}

	sink := metrics.NewRateLimitedSink(
		metrics.NewMultiSink(sinks...),
		p.cfg.Metrics.RateLimit.PublishesPerSecond,
	)

	store := p.sharedStore

	if p.cfg.Metadata.Driver == "dynamodb" {
		ddb, err := metastore.NewStore(log, &p.cfg.Metadata, reporting)
		if err != nil {
			log.WithError(err).WithField("region", reporting).
				Error("Failed to create metadata store, metadata disabled for region")
		} else if ddb != nil {
			if err := ddb.Start(p.ctx); err != nil {
				log.WithError(err).WithField("region", reporting).
					Error("Failed to start metadata store, metadata disabled for region")
			} else {
				store = ddb
				p.stores = append(p.stores, ddb)
			}
		}
	}

	rec := newRecorder(p.cfg, sink, store)
	p.recorders[reporting] = rec

	return rec
}

// Stop shuts down all stores created by the provider.
func (p *recorderProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, store := range p.stores {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop metadata store")
		}
	}
}

func newRecorder(cfg *config.Config, sink metrics.Sink, store metastore.Store) telemetry.Recorder {
	recCfg := &telemetry.Config{
		Namespace:    cfg.Telemetry.Namespace,
		BuildNumber:  cfg.Telemetry.BuildNumber,
		ClientCommit: cfg.Telemetry.ClientCommit,
		ConfigCommit: cfg.Telemetry.ConfigCommit,
		AgentCommit:  cfg.Telemetry.AgentCommit,
	}

	// A nil store disables metadata publication.
	var metaStore telemetry.MetadataStore
	if store != nil {
		metaStore = store
	}

	return telemetry.NewRecorder(log, recCfg, sink, metaStore)
}
