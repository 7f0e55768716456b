package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/secdb/internal/statement"
)

var classifyCmd = &cobra.Command{
	Use:     "classify <definition>",
	Short:   "Print the statement kind of a link role definition",
	Example: `  secdb classify "0002 - Statement - Consolidated Balance Sheets"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), statement.ClassifyLinkrole(args[0]))
		return err
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
