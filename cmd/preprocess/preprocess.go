package preprocess

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/training"
)

// Command creates the preprocess command.
func Command(ctx *conf.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess",
		Short: "Center-crop and resize the raw image folder",
		Long: "Writes a square, model-sized copy of every image under data.raw into data.processed, " +
			"keeping the <class>/<file> layout. Files that fail are reported and skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := ctx.Settings
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := training.PreprocessFolder(runCtx, s.Data.Raw, s.Data.Processed, s.Model.ImageSize, s.Inference.Threads)
			if res != nil {
				out := cmd.OutOrStdout()
				for _, f := range res.Failed {
					fmt.Fprintf(out, "failed: %s: %v\n", f.Path, f.Err)
				}
				fmt.Fprintf(out, "processed %d of %d images into %s\n", res.Processed, res.Total, s.Data.Processed)
			}
			return err
		},
	}
}
