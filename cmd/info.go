package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-uffs/pkg/app/inspect"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show geometry, block population and cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, &inspect.Request{Target: target()})
	},
}

var lsRecursive bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the entries of a directory on the image, sorted by name.

Examples:
  uffs ls --image flash.img
  uffs ls /docs --image flash.img -r -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}
		return runInspect(cmd, &inspect.Request{Target: target(), Path: path, Recursive: lsRecursive})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "list subdirectories too")
}

func runInspect(cmd *cobra.Command, req *inspect.Request) error {
	ctx := newContext(cmd)
	resp, err := inspect.Handle(ctx, req)
	if err != nil {
		return err
	}
	return inspect.FormatOutput(ctx.Out, resp, ctx.OutputFormat)
}
