package evaluate

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/training"
)

// Command creates the evaluate command.
func Command(ctx *conf.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score the saved model on the processed image folder",
		Long: "Prints the classification report and writes it with the confusion matrix " +
			"into reports.dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := ctx.Settings

			ds, err := training.ImageFolder(s.Data.Processed)
			if err != nil {
				return err
			}
			clf, err := classifier.Build(classifier.LoaderConfigFromSettings(s))
			if err != nil {
				return err
			}
			if !clf.WeightsFound {
				logger.Global().Module("main").Warn("no trained weights found, scores reflect an untrained model",
					logger.String("path", s.Model.Path))
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := training.Evaluate(runCtx, clf.Model, ds, s.Model.ImageSize, s.Inference.Threads)
			if err != nil {
				return err
			}
			reportPath, csvPath, err := rep.WriteFiles(s.Reports.Dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, rep.String())
			fmt.Fprintf(out, "report: %s\nconfusion matrix: %s\n", reportPath, csvPath)
			return nil
		},
	}
}
