// Copyright © 2026 The claspd authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of claspd.
var Version = "unset"

// Copyright is the copyright including authors of claspd.
var Copyright = "Copyright © 2026 The claspd authors"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of claspd",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("claspd version %s\n%s\n", Version, Copyright)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
