package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clusterops/telemetoor/pkg/region"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <region>",
	Short: "Print the reporting region for a test region",
	Long: `Resolve a test region to the partition-designated reporting region
that metrics and metadata would be published to.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		testRegion := args[0]

		fmt.Printf("region:    %s\n", testRegion)
		fmt.Printf("partition: %s\n", region.Partition(testRegion))
		fmt.Printf("reporting: %s\n", region.Reporting(testRegion))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
