package predict

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/gradcam"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/overlay"
)

// Command creates the predict command.
func Command(ctx *conf.Context) *cobra.Command {
	var overlayPath string

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a single image",
		Long:  "Prints the predicted class and per-class probabilities. With --overlay the Grad-CAM heatmap is written as a PNG.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx.Settings, args[0], overlayPath)
		},
	}
	cmd.Flags().StringVar(&overlayPath, "overlay", "", "Write the Grad-CAM overlay PNG to this path")
	return cmd
}

func run(cmd *cobra.Command, s *conf.Settings, imagePath, overlayPath string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", imagePath).
			Build()
	}
	img, err := imaging.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	clf, err := classifier.Build(classifier.LoaderConfigFromSettings(s))
	if err != nil {
		return err
	}
	pred, err := clf.Predict(img)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %.4f\n", pred.Label, pred.Confidence)
	for _, name := range clf.ClassNames {
		fmt.Fprintf(out, "  %-12s %.4f\n", name, pred.Probabilities[name])
	}
	if !clf.WeightsFound {
		fmt.Fprintln(out, "warning: no trained weights found")
	}

	if overlayPath == "" {
		return nil
	}
	explainer, err := gradcam.New(clf.Model, s.GradCAM.TargetLayer)
	if err != nil {
		return err
	}
	x, err := clf.Preprocess(img)
	if err != nil {
		return err
	}
	res, err := explainer.Explain(x, &pred.ClassIndex)
	if err != nil {
		return err
	}
	ov, err := overlay.Render(img, res.Map, s.GradCAM.Alpha)
	if err != nil {
		return err
	}
	data, err := overlay.EncodePNG(ov)
	if err != nil {
		return err
	}
	if err := os.WriteFile(overlayPath, data, 0o644); err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", overlayPath).
			Build()
	}
	fmt.Fprintf(out, "overlay (%s): %s\n", explainer.Layer(), overlayPath)
	return nil
}
