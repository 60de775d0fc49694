package telemetry

import "time"

// TestContext carries everything the recorder accumulates for one test
// case. It is owned by the test-execution context for the lifetime of the
// case and passed by reference through the phases.
type TestContext struct {
	TestName     string
	Feature      string
	Region       string
	OS           string
	InstanceType string

	// Cluster identity, discovered by the test body during the call phase.
	ClusterStackName string
	LogGroupName     string

	starts   map[Phase]time.Time
	ends     map[Phase]time.Time
	metadata *TestMetadata
}

// NewTestContext creates a context for a single test case. Cluster identity
// fields start at the "none" sentinel until discovered.
func NewTestContext(testName, feature, region, os, instanceType string) *TestContext {
	return &TestContext{
		TestName:         testName,
		Feature:          feature,
		Region:           region,
		OS:               os,
		InstanceType:     instanceType,
		ClusterStackName: NoneSentinel,
		LogGroupName:     NoneSentinel,
		starts:           make(map[Phase]time.Time, 3),
		ends:             make(map[Phase]time.Time, 3),
	}
}

// SetClusterInfo records the cluster stack name and log group once known.
// Empty values are ignored so partial discovery keeps the sentinel.
func (tc *TestContext) SetClusterInfo(stackName, logGroupName string) {
	if stackName != "" {
		tc.ClusterStackName = stackName
	}

	if logGroupName != "" {
		tc.LogGroupName = logGroupName
	}
}

// markStart stamps the start of a phase.
func (tc *TestContext) markStart(phase Phase, at time.Time) {
	tc.starts[phase] = at
}

// markEnd stamps the end of a phase.
func (tc *TestContext) markEnd(phase Phase, at time.Time) {
	tc.ends[phase] = at
}

// StartedAt returns the start timestamp of a phase, if recorded.
func (tc *TestContext) StartedAt(phase Phase) (time.Time, bool) {
	at, ok := tc.starts[phase]

	return at, ok
}

// EndedAt returns the end timestamp of a phase, if recorded.
func (tc *TestContext) EndedAt(phase Phase) (time.Time, bool) {
	at, ok := tc.ends[phase]

	return at, ok
}

// PhaseWindow returns both timestamps of a phase. The boolean is false
// unless both were recorded.
func (tc *TestContext) PhaseWindow(phase Phase) (start, end time.Time, ok bool) {
	start, startOK := tc.starts[phase]
	end, endOK := tc.ends[phase]

	return start, end, startOK && endOK
}

// Metadata returns the accumulated record, or nil before setup completed.
func (tc *TestContext) Metadata() *TestMetadata {
	return tc.metadata
}
