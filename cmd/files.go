package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-uffs/pkg/app"
	"github.com/deploymenttheory/go-uffs/pkg/app/fileops"
)

var putOverwrite bool

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileOp(cmd, func(ctx *app.Context) (*fileops.Result, error) {
			return fileops.HandleMkdir(ctx, &fileops.MkdirRequest{Target: target(), Path: args[0]})
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <host-file> <path>",
	Short: "Copy a host file onto the image",
	Long: `Copy a host file onto the image. The parent directory must exist.

Examples:
  uffs put ./notes.txt /docs/notes.txt --image flash.img
  uffs put ./notes.txt /docs/notes.txt --image flash.img --overwrite`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileOp(cmd, func(ctx *app.Context) (*fileops.Result, error) {
			return fileops.HandlePut(ctx, &fileops.PutRequest{
				Target:    target(),
				Source:    args[0],
				Dest:      args[1],
				Overwrite: putOverwrite,
			})
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path> <host-file>",
	Short: "Copy a file from the image to the host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileOp(cmd, func(ctx *app.Context) (*fileops.Result, error) {
			return fileops.HandleGet(ctx, &fileops.GetRequest{Target: target(), Source: args[0], Dest: args[1]})
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a file or an empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFileOp(cmd, func(ctx *app.Context) (*fileops.Result, error) {
			return fileops.HandleRemove(ctx, &fileops.RemoveRequest{Target: target(), Path: args[0]})
		})
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)

	putCmd.Flags().BoolVar(&putOverwrite, "overwrite", false, "replace an existing file")
}

func runFileOp(cmd *cobra.Command, op func(*app.Context) (*fileops.Result, error)) error {
	ctx := newContext(cmd)
	res, err := op(ctx)
	if err != nil {
		return err
	}
	if ctx.Quiet {
		return nil
	}
	return fileops.FormatOutput(ctx.Out, res, ctx.OutputFormat)
}
