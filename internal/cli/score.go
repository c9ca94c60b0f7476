package cli

import (
	"fmt"
	"image"

	"github.com/MrCodeEU/livecheck/internal/compositor"
	"github.com/MrCodeEU/livecheck/internal/quality"
	"github.com/MrCodeEU/livecheck/pkg/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ScoreReport is the output of the score command
type ScoreReport struct {
	Resolution string `yaml:"resolution"`
	Lighting   int    `yaml:"lighting"`
	Sharpness  int    `yaml:"sharpness"`
	Contrast   int    `yaml:"contrast"`
	Clarity    int    `yaml:"clarity"`
	Level      string `yaml:"level"`
}

func newScoreCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "score <frame> [mask]",
		Short: "Score the foreground quality of a still frame",
		Long: "Runs a frame through the preview compositor and reports the quality scores.\n" +
			"The optional mask is a grayscale image; without one the whole frame is foreground.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfiguration()
			if err != nil {
				return err
			}

			frame, err := decodeImageFile(args[0])
			if err != nil {
				return err
			}
			var mask *image.Gray
			if len(args) == 2 {
				m, err := decodeImageFile(args[1])
				if err != nil {
					return err
				}
				mask = utils.ToGray(m)
			}

			report, err := scoreFrame(utils.ToRGBA(frame), mask, cfg.Compositor, quality.NewScorer(cfg.Quality))
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func scoreFrame(frame *image.RGBA, mask *image.Gray, params compositor.Params, scorer *quality.Scorer) (*ScoreReport, error) {
	params.QualityOverlay = true
	res, ok := compositor.New(scorer).Composite(frame, mask, params)
	if !ok {
		return nil, fmt.Errorf("frame is empty")
	}

	b := frame.Bounds()
	return &ScoreReport{
		Resolution: quality.ResolutionLabel(b.Dx(), b.Dy()),
		Lighting:   res.Quality.Lighting,
		Sharpness:  res.Quality.Sharpness,
		Contrast:   res.Quality.Contrast,
		Clarity:    res.Quality.Clarity,
		Level:      quality.Level(res.Quality.Clarity),
	}, nil
}
