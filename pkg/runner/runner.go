package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// Output markers a call command may emit to report discovered cluster
// identity.
const (
	stackNameMarker = "cluster_stack_name="
	logGroupMarker  = "cw_log_group_name="
)

// RecorderFactory returns the recorder for a test's region. Tests in
// different regions may publish to different reporting backends.
type RecorderFactory func(testRegion string) telemetry.Recorder

// Runner executes configured test cases across a worker pool, bracketing
// each case's phases with recorder hooks.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error

	// Run executes all test cases and returns the aggregated summary.
	Run(ctx context.Context) (*RunSummary, error)

	// RunDir returns the directory results were written to.
	RunDir() string
}

// Config for the runner.
type Config struct {
	Workers      int
	ResultsDir   string
	ResultsOwner string
	Tests        []config.TestCaseConfig
}

// NewRunner creates a new runner instance.
func NewRunner(log logrus.FieldLogger, cfg *Config, recorderFor RecorderFactory) Runner {
	return &runner{
		log:         log.WithField("component", "runner"),
		cfg:         cfg,
		recorderFor: recorderFor,
	}
}

type runner struct {
	log         logrus.FieldLogger
	cfg         *Config
	recorderFor RecorderFactory

	cases  []*TestCase
	owner  *OwnerConfig
	runID  string
	runDir string
	host   *HostInfo
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Start prepares the run directory and captures host information.
func (r *runner) Start(_ context.Context) error {
	owner, err := ParseOwner(r.cfg.ResultsOwner)
	if err != nil {
		return fmt.Errorf("parsing results_owner: %w", err)
	}

	r.owner = owner
	r.cases = BuildTestCases(r.cfg.Tests)
	r.runID = newRunID(time.Now())
	r.runDir = filepath.Join(r.cfg.ResultsDir, r.runID)

	if err := mkdirAll(r.runDir, 0755, r.owner); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}

	r.host = collectHostInfo(r.log)

	r.log.WithFields(logrus.Fields{
		"run_id": r.runID,
		"tests":  len(r.cases),
	}).Info("Runner ready")

	return nil
}

// Stop cleans up the runner.
func (r *runner) Stop() error {
	r.log.Debug("Runner stopped")

	return nil
}

// RunDir returns the directory results were written to.
func (r *runner) RunDir() string {
	return r.runDir
}

// Run executes all test cases across the worker pool. If the context is
// cancelled, remaining cases are skipped but the summary is still written.
func (r *runner) Run(ctx context.Context) (*RunSummary, error) {
	startedAt := time.Now()

	r.log.WithFields(logrus.Fields{
		"tests":   len(r.cases),
		"workers": r.cfg.Workers,
	}).Info("Starting test execution")

	var mu sync.Mutex

	results := make([]*CaseResult, 0, len(r.cases))

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)

	for _, test := range r.cases {
		g.Go(func() error {
			result := r.runCase(ctx, test)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			return nil
		})
	}

	// Workers never return errors; failures are captured per case.
	_ = g.Wait()

	summary := &RunSummary{
		RunID:       r.runID,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		TotalTests:  len(r.cases),
		Interrupted: ctx.Err() != nil,
		Host:        r.host,
		Cases:       results,
	}

	for _, result := range results {
		switch {
		case result.Skipped:
			summary.Skipped++
		case result.Passed:
			summary.Passed++
		default:
			summary.Failed++
		}
	}

	if err := writeRunSummary(r.runDir, summary, r.owner); err != nil {
		r.log.WithError(err).Warn("Failed to write run summary")
	}

	r.log.WithFields(logrus.Fields{
		"passed":  summary.Passed,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	}).Info("Test execution completed")

	return summary, nil
}

// runCase executes a single test case's phases with recorder hooks around
// each.
func (r *runner) runCase(ctx context.Context, test *TestCase) *CaseResult {
	result := &CaseResult{
		Name:    test.Name,
		Feature: test.Feature,
		Region:  test.Region,
	}

	if ctx.Err() != nil {
		result.Skipped = true

		return result
	}

	log := r.log.WithField("test", test.Name)
	log.Info("Running test")

	caseDir := filepath.Join(r.runDir, test.Name)
	if err := mkdirAll(caseDir, 0755, r.owner); err != nil {
		log.WithError(err).Error("Failed to create case dir")

		return result
	}

	tc := telemetry.NewTestContext(test.Name, test.Feature, test.Region, test.OS, test.InstanceType)
	rec := r.recorderFor(test.Region)

	// Setup phase. A missing setup command completes trivially.
	rec.BeforeSetup(ctx, tc)

	setupStatus := telemetry.StatusPassed

	if test.Setup != "" {
		if _, err := r.runPhaseCommand(ctx, caseDir, "setup", test.Setup); err != nil {
			log.WithError(err).Error("Setup failed")

			setupStatus = telemetry.StatusFailed
		}
	}

	rec.AfterSetup(ctx, tc, setupStatus)
	result.Setup = string(setupStatus)

	// Call phase, skipped entirely when setup failed.
	if setupStatus == telemetry.StatusPassed {
		callStatus := telemetry.StatusPassed

		output, err := r.runPhaseCommand(ctx, caseDir, "call", test.Call)
		if err != nil {
			log.WithError(err).Error("Call failed")

			callStatus = telemetry.StatusFailed
		}

		// Cluster identity becomes known during the call phase.
		stackName, logGroup := parseClusterInfo(output)
		tc.SetClusterInfo(stackName, logGroup)

		rec.AfterCall(ctx, tc, callStatus)
		result.Call = string(callStatus)
	}

	// Teardown always runs, even after setup failure.
	teardownStatus := telemetry.StatusPassed

	if test.Teardown != "" {
		if _, err := r.runPhaseCommand(ctx, caseDir, "teardown", test.Teardown); err != nil {
			log.WithError(err).Error("Teardown failed")

			teardownStatus = telemetry.StatusFailed
		}
	}

	rec.AfterTeardown(ctx, tc, teardownStatus)
	result.Teardown = string(teardownStatus)

	result.Passed = result.Setup == string(telemetry.StatusPassed) &&
		result.Call == string(telemetry.StatusPassed) &&
		result.Teardown == string(telemetry.StatusPassed)

	if setupStart, _, ok := tc.PhaseWindow(telemetry.PhaseSetup); ok {
		if teardownEnd, endOK := tc.EndedAt(telemetry.PhaseTeardown); endOK {
			total := teardownEnd.Sub(setupStart).Microseconds()
			result.TotalTimeUS = &total
		}
	}

	if md := tc.Metadata(); md != nil {
		if err := writeCaseMetadata(caseDir, md, r.owner); err != nil {
			log.WithError(err).Warn("Failed to write case metadata")
		}
	}

	if result.Passed {
		log.Info("Test completed successfully")
	} else {
		log.Warn("Test completed with failures")
	}

	return result
}

// runPhaseCommand runs a phase command through the shell, teeing output to
// the phase log file, and returns the captured output.
func (r *runner) runPhaseCommand(ctx context.Context, caseDir, phase, command string) (string, error) {
	logPath := filepath.Join(caseDir, phase+".log")

	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("creating phase log: %w", err)
	}

	defer func() { _ = logFile.Close() }()

	chown(logPath, r.owner)

	var buf bytes.Buffer

	out := io.MultiWriter(logFile, &buf)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("running %s command: %w", phase, err)
	}

	return buf.String(), nil
}

// parseClusterInfo scans command output for cluster identity markers.
func parseClusterInfo(output string) (stackName, logGroup string) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if value, ok := strings.CutPrefix(line, stackNameMarker); ok {
			stackName = value
		}

		if value, ok := strings.CutPrefix(line, logGroupMarker); ok {
			logGroup = value
		}
	}

	return stackName, logGroup
}
