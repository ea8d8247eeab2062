package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-uffs/pkg/app/fileops"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase an image and create an empty root directory",
	Long: `Erase every block of the image that is not marked bad. Blocks that
fail to erase are retired. The image is created when it does not exist.

Examples:
  uffs format --image flash.img
  uffs format --config ./uffs-config.yaml -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFormat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

func runFormat(cmd *cobra.Command) error {
	ctx := newContext(cmd)
	res, err := fileops.HandleFormat(ctx, &fileops.FormatRequest{Target: target()})
	if err != nil {
		return err
	}
	if ctx.Quiet {
		return nil
	}
	return fileops.FormatOutput(ctx.Out, res, ctx.OutputFormat)
}
