package telemetry

import "time"

// Phase is one of the three stages executed per test case.
type Phase string

// Test phases, in execution order.
const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Status is the reported outcome of a single phase.
type Status string

// Phase outcomes.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// NoneSentinel is the placeholder for cluster identity fields that are not
// yet known. Stack name and log group become known only during the call
// phase.
const NoneSentinel = "none"

// PhaseRecord captures the outcome and timing window of one completed
// phase. Records are built once at phase end and not mutated afterwards.
type PhaseRecord struct {
	Phase     Phase     `json:"phase" dynamodbav:"phase"`
	Status    Status    `json:"status" dynamodbav:"status"`
	StartTime time.Time `json:"start_time" dynamodbav:"start_time"`
	EndTime   time.Time `json:"end_time" dynamodbav:"end_time"`
}

// Elapsed returns the phase duration. The boolean is false when either
// timestamp is missing, which consumers must treat as "phase not
// applicable" rather than zero duration.
func (r *PhaseRecord) Elapsed() (time.Duration, bool) {
	if r == nil || r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0, false
	}

	return r.EndTime.Sub(r.StartTime), true
}

// TestMetadata is the record accumulated for one test case across the
// setup, call and teardown phases. It is created once at setup completion
// and mutated in place afterwards so dimension values discovered during
// the call phase survive into the teardown snapshot.
type TestMetadata struct {
	// Identity.
	TestName     string `json:"test_name" dynamodbav:"test_name"`
	Feature      string `json:"feature" dynamodbav:"feature"`
	Region       string `json:"region" dynamodbav:"region"`
	OS           string `json:"os" dynamodbav:"os"`
	InstanceType string `json:"instance_type" dynamodbav:"instance_type"`

	// Provenance.
	BuildNumber  int    `json:"build_number" dynamodbav:"build_number"`
	ClientCommit string `json:"client_commit" dynamodbav:"client_commit"`
	ConfigCommit string `json:"config_commit" dynamodbav:"config_commit"`
	AgentCommit  string `json:"agent_commit" dynamodbav:"agent_commit"`

	// Cluster identity, discovered during the call phase.
	ClusterStackName string `json:"cluster_stack_name" dynamodbav:"cluster_stack_name"`
	LogGroupName     string `json:"log_group_name" dynamodbav:"log_group_name"`

	// Per-phase records, each set once its phase completes.
	Setup    *PhaseRecord `json:"setup_metadata,omitempty" dynamodbav:"setup_metadata,omitempty"`
	Call     *PhaseRecord `json:"call_metadata,omitempty" dynamodbav:"call_metadata,omitempty"`
	Teardown *PhaseRecord `json:"teardown_metadata,omitempty" dynamodbav:"teardown_metadata,omitempty"`
}
