package runner

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clusterops/telemetoor/pkg/config"
)

// TestCase is a single runnable test case with its per-phase commands.
type TestCase struct {
	Name         string
	Feature      string
	Region       string
	OS           string
	InstanceType string

	Setup    string
	Call     string
	Teardown string
}

// featureAffixes matches the test_/_test affixes stripped when deriving a
// feature name from a test name.
var featureAffixes = regexp.MustCompile(`test_|_test`)

// ExtractFeature derives the tested feature from a test name or file path.
// "dcv/test_dcv_configuration.py" becomes "dcv_configuration".
func ExtractFeature(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return featureAffixes.ReplaceAllString(base, "")
}

// BuildTestCases converts configured test cases into runnable ones,
// deriving the feature from the test name where not declared.
func BuildTestCases(cfgs []config.TestCaseConfig) []*TestCase {
	cases := make([]*TestCase, 0, len(cfgs))

	for _, c := range cfgs {
		feature := c.Feature
		if feature == "" {
			feature = ExtractFeature(c.Name)
		}

		cases = append(cases, &TestCase{
			Name:         c.Name,
			Feature:      feature,
			Region:       c.Region,
			OS:           c.OS,
			InstanceType: c.InstanceType,
			Setup:        c.Setup,
			Call:         c.Call,
			Teardown:     c.Teardown,
		})
	}

	return cases
}
