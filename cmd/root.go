package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bwupload",
		Short: "Grayscale image upload service",
		Long: `bwupload accepts a single JPEG or PNG image in a multipart/form-data request,
stores the original, and stores a grayscale copy scaled to fit a bounding box.

Configuration is read from the environment (and a .env file if present).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newLambdaCmd())

	return cmd
}
