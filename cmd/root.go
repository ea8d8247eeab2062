package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-uffs/pkg/app"
)

var (
	// Global output flags
	verbose      bool
	quiet        bool
	outputFormat string

	// Image selection shared by every command
	imagePath  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "uffs",
	Short: "Flash filesystem image tool",
	Long: `uffs creates and edits flash filesystem images on an emulated NAND
device. Writes go through the page buffer pool, so partial pages are
appended in place and full rewrites move the object to a fresh block.

Commands:
  format    Erase an image and create an empty root directory
  info      Show geometry, block population and cache statistics
  ls        List a directory
  mkdir     Create a directory
  put       Copy a host file onto the image
  get       Copy a file from the image to the host
  rm        Remove a file or an empty directory`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", app.CodeOf(err), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "flash image file (overrides device.image_path)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: uffs-config.yaml on the search path)")
}

// newContext builds the application context from the global flags
func newContext(cmd *cobra.Command) *app.Context {
	ctx := app.NewContext()
	if c := cmd.Context(); c != nil {
		ctx.Context = c
	}
	ctx.Out = cmd.OutOrStdout()
	ctx.OutputFormat = outputFormat
	ctx.Verbose = verbose
	ctx.Quiet = quiet
	ctx.Logger.SetOutput(cmd.ErrOrStderr())
	ctx.ApplyVerbosity()
	if verbose {
		ctx.SetProgress(func(message string, percent int) {
			ctx.Logger.Debugf("[%3d%%] %s", percent, message)
		})
	}
	return ctx
}

// target returns the image selected by the global flags
func target() app.ImageTarget {
	return app.ImageTarget{ImagePath: imagePath, ConfigPath: configPath}
}
