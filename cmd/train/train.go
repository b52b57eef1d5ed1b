package train

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability"
	"github.com/sonoscan/sonoscan/internal/training"
)

// headPrefix names the classification head, which a warm start never loads.
const headPrefix = "fc."

// Command creates the train command.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fine-tune the classifier on the processed image folder",
		Long: "Trains on data.processed and saves the weights and class names whenever " +
			"validation accuracy improves.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx)
		},
	}

	cmd.Flags().Int("epochs", 0, "Number of epochs (overrides train.epochs)")
	if err := viper.BindPFlag("train.epochs", cmd.Flags().Lookup("epochs")); err != nil {
		panic(err)
	}
	return cmd
}

func run(cmd *cobra.Command, ctx *conf.Context) error {
	s := ctx.Settings
	log := logger.Global().Module("main")

	ds, err := training.ImageFolder(s.Data.Processed)
	if err != nil {
		return err
	}

	model, err := classifier.ResNet18(len(ds.ClassNames), s.Train.Seed)
	if err != nil {
		return err
	}
	if s.Train.InitWeights != "" {
		found, err := model.LoadWeights(s.Train.InitWeights, classifier.LoadOptions{SkipPrefixes: []string{headPrefix}})
		if err != nil {
			return err
		}
		if !found {
			log.Warn("initial weights not found, training from scratch", logger.String("path", s.Train.InitWeights))
		}
	}
	model.SetFreezePolicy(s.Train.FreezeBackbone, s.Train.UnfreezeLastBlock)

	trainer, err := training.NewTrainer(model, ds, training.ConfigFromSettings(s))
	if err != nil {
		return err
	}
	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	trainer.Metrics = m.Training

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := trainer.Run(runCtx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range res.Epochs {
		saved := ""
		if e.Saved {
			saved = "  saved"
		}
		fmt.Fprintf(out, "epoch %3d  train_loss %.4f  val_loss %.4f  val_acc %.4f  lr %.2e%s\n",
			e.Epoch, e.TrainLoss, e.ValLoss, e.ValAccuracy, e.LearningRate, saved)
	}
	fmt.Fprintf(out, "best validation accuracy %.4f at epoch %d, weights in %s\n", res.BestAccuracy, res.BestEpoch, s.Model.Path)
	return nil
}
