package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bwupload/failure"
)

func newProcessCmd() *cobra.Command {
	var (
		out          string
		maxDimension int
	)

	cmd := &cobra.Command{
		Use:   "process <image>",
		Short: "Normalize a local image without storing it",
		Long: `Runs one JPEG or PNG file through validation and normalization and writes
the grayscale JPEG to disk. Nothing is uploaded and no alert is sent.`,
		Example: `  # Writes photo_bw.jpg next to the input
  bwupload process photo.jpg

  # Custom output path and bounding box
  bwupload process photo.png -o thumb.jpg --max-dimension 200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if maxDimension > 0 {
				cfg.Image.MaxDimension = maxDimension
			}

			in := args[0]
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			res, err := newProcessor(cfg, log).ProcessFile(cmd.Context(), filepath.Base(in), data)
			if err != nil {
				fe := failure.As(err)
				log.Error("Image rejected", zap.String("file", in), zap.String("kind", fe.Kind.String()), zap.Error(fe))
				return fe
			}

			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + "_bw.jpg"
			}
			if err := os.WriteFile(out, res.Normalized, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %dx%d -> %s\n", in, res.Format, res.Width, res.Height, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default <input>_bw.jpg)")
	cmd.Flags().IntVar(&maxDimension, "max-dimension", 0, "Bounding box side in pixels (overrides MAX_DIMENSION)")

	return cmd
}
