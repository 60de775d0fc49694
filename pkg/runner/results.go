package runner

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// OwnerConfig holds parsed UID/GID for result file ownership, for runs
// executed as root on behalf of another user.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	parts := strings.Split(owner, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", parts[0], err)
	}

	gid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", parts[1], err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// chown sets ownership if owner is not nil. Best-effort, ignores errors.
func chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// mkdirAll creates a directory and sets ownership.
func mkdirAll(path string, perm os.FileMode, owner *OwnerConfig) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	chown(path, owner)

	return nil
}

// writeFile writes a file and sets ownership.
func writeFile(path string, data []byte, perm os.FileMode, owner *OwnerConfig) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}

	chown(path, owner)

	return nil
}

// CaseResult summarizes the outcome of one test case in the run summary.
type CaseResult struct {
	Name     string `json:"name"`
	Feature  string `json:"feature"`
	Region   string `json:"region"`
	Passed   bool   `json:"passed"`
	Skipped  bool   `json:"skipped,omitempty"`
	Setup    string `json:"setup_status,omitempty"`
	Call     string `json:"call_status,omitempty"`
	Teardown string `json:"teardown_status,omitempty"`

	// Whole-case wall-clock span in microseconds, present only when both
	// ends of the span were recorded.
	TotalTimeUS *int64 `json:"total_time_us,omitempty"`
}

// RunSummary is the aggregated result of one run, written to summary.json
// in the run directory.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	TotalTests  int           `json:"tests_total"`
	Passed      int           `json:"tests_passed"`
	Failed      int           `json:"tests_failed"`
	Skipped     int           `json:"tests_skipped,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Host        *HostInfo     `json:"host,omitempty"`
	Cases       []*CaseResult `json:"cases"`
}

// newRunID generates a run directory name from the start timestamp and a
// short random suffix.
func newRunID(at time.Time) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)

	return fmt.Sprintf("%d_%s", at.Unix(), hex.EncodeToString(suffix))
}

// writeCaseMetadata writes the final accumulated metadata record for a
// test case to metadata.json in its case directory.
func writeCaseMetadata(caseDir string, md *telemetry.TestMetadata, owner *OwnerConfig) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling case metadata: %w", err)
	}

	path := filepath.Join(caseDir, "metadata.json")
	if err := writeFile(path, data, 0644, owner); err != nil {
		return fmt.Errorf("writing case metadata: %w", err)
	}

	return nil
}

// writeRunSummary writes the run summary to summary.json in the run
// directory.
func writeRunSummary(runDir string, summary *RunSummary, owner *OwnerConfig) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	path := filepath.Join(runDir, "summary.json")
	if err := writeFile(path, data, 0644, owner); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}

	return nil
}
