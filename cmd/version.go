package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	version = "anchor 0.1"
)

func init() {
	anchorCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Anchor",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}
